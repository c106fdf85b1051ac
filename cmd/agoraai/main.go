package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "agoraai",
		Short: "AgoraAI multi-agent marketplace node",
		Long:  "AgoraAI runs a marketplace of agents whose service exchanges are journaled on a proof-of-work ledger and who talk over a length-prefixed message protocol.",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newDemoCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
