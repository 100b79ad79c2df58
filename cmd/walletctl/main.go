package main

import "github.com/olehkaliuzhnyi/flow-wallet/cmd/walletctl/cmd"

func main() {
	cmd.Execute()
}
