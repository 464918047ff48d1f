package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type balance struct {
	Address string `json:"address"`
	Usable  uint64 `json:"usable"`
	Locked  uint64 `json:"locked"`
	Total   uint64 `json:"total"`
}

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance of the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveAccount()
		if err != nil {
			return err
		}

		return runBalance(addr)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(addr string) error {
	var bal balance
	if err := get(fmt.Sprintf("/v1/accounts/%s/balance", addr), &bal); err != nil {
		return err
	}

	fmt.Println("For Account:", bal.Address)
	fmt.Println("Usable:", bal.Usable)
	fmt.Println("Locked:", bal.Locked)
	fmt.Println("Total:", bal.Total)

	return nil
}
