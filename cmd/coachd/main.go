package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tractionhq/coachd/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coachd",
		Short: "Coaching retrieval daemon",
		Long:  "coachd serves hybrid retrieval and context assembly for the coaching assistant, and runs embedding backfill",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.BackfillCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
