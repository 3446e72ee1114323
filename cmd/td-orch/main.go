package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "td-orch",
		Short: "Template Doctor validation orchestrator",
		Long: `td-orch dispatches template validation workflows on GitHub Actions,
correlates the resulting runs back to client tokens, and drives them
to completion. It also coordinates batch compliance scans across many
repositories.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
