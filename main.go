package main

import "github.com/brahma2024/agentic-ledger/cmd"

func main() {
	cmd.Execute()
}
