package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the account from the node into a local keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAccount()
		if err != nil {
			return err
		}

		return runExport(addr)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(addr string) error {
	req := struct {
		Password string `json:"password"`
	}{
		Password: password,
	}

	var ks keystore.Keystore
	if err := post(fmt.Sprintf("/v1/accounts/%s/export", addr), req, &ks); err != nil {
		return err
	}

	disk, err := keystore.NewDisk(accountPath)
	if err != nil {
		return err
	}

	path, err := disk.Write(ks)
	if err != nil {
		return err
	}

	fmt.Println("Keystore:", path)

	return nil
}
