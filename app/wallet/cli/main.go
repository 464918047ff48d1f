package main

import "github.com/adamwoolhether/utxochain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
