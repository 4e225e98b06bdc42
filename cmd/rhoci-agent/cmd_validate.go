package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhoci/rhoci/internal/catalog"
)

var validateCatalogCmd = &cobra.Command{
	Use:   "validate-catalog <file>",
	Short: "Check a failure signature file without starting the agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateCatalog,
}

func runValidateCatalog(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Build(args[0])
	if err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, sig := range cat.Definitions() {
		fmt.Fprintf(out, "%-28s %-12s %s\n", sig.Name, sig.Category, sig.Pattern)
	}
	fmt.Fprintf(out, "%d signatures OK\n", cat.Len())
	return nil
}
