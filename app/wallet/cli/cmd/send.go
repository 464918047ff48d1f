package cmd

import (
	"github.com/spf13/cobra"
)

var (
	to     string
	amount uint64
	remark string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transfer from the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := resolveAccount()
		if err != nil {
			return err
		}

		return runSend(from)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address receiving the funds.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to send.")
	sendCmd.Flags().StringVarP(&remark, "remark", "r", "", "Remark stored with the transaction.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func runSend(from string) error {
	req := struct {
		From     string `json:"from"`
		Password string `json:"password"`
		To       string `json:"to"`
		Amount   uint64 `json:"amount"`
		Remark   string `json:"remark"`
	}{
		From:     from,
		Password: password,
		To:       to,
		Amount:   amount,
		Remark:   remark,
	}

	var tx map[string]any
	if err := post("/v1/tx/transfer", req, &tx); err != nil {
		return err
	}

	return show(tx)
}
