package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <address|file>",
	Short: "Import a keystore into the node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(target string) error {
	var ks keystore.Keystore

	// An address names a keystore in the account path.
	if addr, err := signature.ParseAddress(target); err == nil {
		disk, err := keystore.NewDisk(accountPath)
		if err != nil {
			return err
		}
		if ks, err = disk.Read(addr); err != nil {
			return err
		}
	} else {
		if ks, err = keystore.ReadFile(target); err != nil {
			return err
		}
	}

	req := struct {
		Keystore keystore.Keystore `json:"keystore"`
		Password string            `json:"password"`
	}{
		Keystore: ks,
		Password: password,
	}

	var imported struct {
		Address string `json:"address"`
	}
	if err := post("/v1/accounts/import", req, &imported); err != nil {
		return err
	}

	fmt.Println("Imported:", imported.Address)

	return nil
}
