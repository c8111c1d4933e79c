package main

import (
	"fmt"

	"github.com/obentoo/tapcheck/internal/common/output"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured packages and their livecheck sources",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pkgCfg, err := loadPackages(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := pkgCfg.Names()
	if len(names) == 0 {
		output.Fprintf(out, output.Dim, "No packages configured\n")
		return nil
	}

	for _, name := range names {
		output.Fprintf(out, output.Package, "  %s\n", name)
		pkg, err := pkgCfg.Package(name)
		if err != nil {
			output.Fprintf(out, output.Error, "    Error:    %v\n", err)
			continue
		}
		src := pkg.Source
		fmt.Fprintf(out, "    Version:  %s\n", pkg.Descriptor.DeclaredVersion)
		fmt.Fprintf(out, "    Strategy: %s (%s)\n", src.Strategy, src.Kind)
		fmt.Fprintf(out, "    URL:      %s\n", src.URL)
		if src.Regex != "" {
			fmt.Fprintf(out, "    Regex:    %s\n", src.Regex)
		}
		if src.Path != "" {
			fmt.Fprintf(out, "    Path:     %s\n", src.Path)
		}
	}

	fmt.Fprintln(out)
	output.Fprintf(out, output.Info, "Total: %d package(s)\n", len(names))
	return nil
}
