// Package cmd contains wallet app commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	url         string
	accountPath string
	account     string
	password    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet for the utxo chain node",
}

// Execute runs the command named on the command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with keystores.")
	rootCmd.PersistentFlags().StringVarP(&account, "account", "a", "", "The account to use, the node default when empty.")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "w", "", "Password of the account.")
}

// resolveAccount returns the account flag, or asks the node for its default.
func resolveAccount() (string, error) {
	if account != "" {
		return account, nil
	}

	var acct struct {
		Address string `json:"address"`
	}
	if err := get("/v1/accounts/default", &acct); err != nil {
		return "", fmt.Errorf("default account: %w", err)
	}

	return acct.Address, nil
}
