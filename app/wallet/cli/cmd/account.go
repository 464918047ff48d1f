package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
)

var onNode bool

// accountCmd represents the account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the local keystore accounts, or the accounts held by the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onNode {
			return runNodeAccounts()
		}

		return runAccount()
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().BoolVarP(&onNode, "node", "n", false, "List the accounts held by the node.")
}

func runAccount() error {
	disk, err := keystore.NewDisk(accountPath)
	if err != nil {
		return err
	}

	iter, err := disk.ForEach()
	if err != nil {
		return err
	}

	for ks, err := iter.Next(); !iter.Done(); ks, err = iter.Next() {
		if err != nil {
			return err
		}

		fmt.Println(ks.Address, ks.Alias)
	}

	return nil
}

func runNodeAccounts() error {
	var accounts []struct {
		Address   string `json:"address"`
		Alias     string `json:"alias"`
		Encrypted bool   `json:"encrypted"`
	}
	if err := get("/v1/accounts", &accounts); err != nil {
		return err
	}

	for _, a := range accounts {
		fmt.Println(a.Address, a.Alias, a.Encrypted)
	}

	return nil
}
