package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/obentoo/tapcheck/internal/common/config"
	"github.com/obentoo/tapcheck/internal/common/logger"
	"github.com/obentoo/tapcheck/internal/common/output"
	"github.com/obentoo/tapcheck/internal/livecheck"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	logToFile  bool
	configPath string

	// packagesFile and tapDir select where package definitions come from
	packagesFile string
	tapDir       string
	cacheDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tapcheck",
	Short: "Check a Homebrew tap for upstream updates",
	Long: `tapcheck resolves the latest upstream version of every package in a
Homebrew tap and reports which declared versions are outdated.

Packages are described in a livecheck.toml file, or read directly from the
livecheck blocks of the tap's casks and formulae with --tap.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if logToFile {
			if err := logger.Default().EnableFileLogging(); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Also write debug logs to the state directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: XDG config dir)")
	rootCmd.PersistentFlags().StringVarP(&packagesFile, "packages", "p", "", "Path to livecheck.toml (default: check.packages from config)")
	rootCmd.PersistentFlags().StringVar(&tapDir, "tap", "", "Read packages from the Casks and Formula of a tap directory")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Resolution cache directory (default: XDG cache dir)")
}

// loadConfig reads the user configuration from --config or the default location.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// loadPackages reads package definitions from --tap, --packages or the config.
func loadPackages(cfg *config.Config) (*livecheck.PackagesConfig, error) {
	if tapDir != "" {
		return livecheck.ScanTap(tapDir)
	}
	path := packagesFile
	if path == "" {
		path = cfg.GetPackagesFile()
	}
	return livecheck.LoadPackagesConfig(path)
}

// cacheDir returns --cache-dir or the XDG cache directory.
func cacheDir() string {
	if cacheDirFlag != "" {
		return cacheDirFlag
	}
	return config.CacheDir()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
