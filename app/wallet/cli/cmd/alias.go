package cmd

import (
	"github.com/spf13/cobra"
)

// aliasCmd represents the alias command
var aliasCmd = &cobra.Command{
	Use:   "alias <name>",
	Short: "Claim an alias for the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAccount()
		if err != nil {
			return err
		}

		return runAlias(addr, args[0])
	},
}

func init() {
	rootCmd.AddCommand(aliasCmd)
}

func runAlias(addr string, name string) error {
	req := struct {
		Address  string `json:"address"`
		Password string `json:"password"`
		Alias    string `json:"alias"`
	}{
		Address:  addr,
		Password: password,
		Alias:    name,
	}

	var tx map[string]any
	if err := post("/v1/aliases", req, &tx); err != nil {
		return err
	}

	return show(tx)
}
