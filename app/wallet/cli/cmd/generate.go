package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	acct "github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair into a local keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeyGen()
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runKeyGen() error {
	if password != "" {
		if err := acct.ValidatePassword(password); err != nil {
			return err
		}
	}

	privateKey, err := signature.GenerateKey()
	if err != nil {
		return err
	}
	defer signature.ZeroKey(privateKey)

	sealed, err := signature.EncryptPrivateKey(privateKey, password, signature.StandardKDF)
	if err != nil {
		return err
	}

	disk, err := keystore.NewDisk(accountPath)
	if err != nil {
		return err
	}

	ks := keystore.Keystore{
		Address:   signature.DeriveAddress(&privateKey.PublicKey),
		PublicKey: signature.PublicKeyBytes(&privateKey.PublicKey),
		Crypto:    sealed,
		Encrypted: password != "",
	}

	path, err := disk.Write(ks)
	if err != nil {
		return err
	}

	fmt.Println("Address:", ks.Address)
	fmt.Println("Keystore:", path)

	return nil
}
