package main

import (
	"errors"
	"fmt"

	"github.com/obentoo/tapcheck/internal/common/output"
	"github.com/spf13/cobra"
)

var errInvalidPackages = errors.New("package configuration is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate package definitions without network access",
	Long: `Check every package definition: required fields, known strategies,
regexes that compile with a capture group, and readable manifests.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pkgCfg, err := loadPackages(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errs := []error{pkgCfg.ValidateAll()}
	for _, name := range pkgCfg.Names() {
		if _, err := pkgCfg.Package(name); err != nil {
			errs = append(errs, fmt.Errorf("package %s: %w", name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		output.Fprintf(out, output.Error, "%v\n", err)
		return errInvalidPackages
	}

	output.Fprintf(out, output.Success, "✓ %d package(s) valid\n", len(pkgCfg.Names()))
	return nil
}
