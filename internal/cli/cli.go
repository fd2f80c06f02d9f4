// Package cli implements the tfomics command-line interface.
//
// This package provides commands for shuffling nucleotide sequences,
// estimating allele-specific binding effect sizes, running Mendelian
// randomisation analyses, extracting reference-genome regions, and
// serving the analyses over HTTP. The CLI is built using cobra and
// supports verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - shuffle: Dinucleotide-shuffle a sequence
//   - asb: Estimate allele-specific binding effect sizes
//   - mr: Run a Mendelian randomisation analysis
//   - extract: Fetch reference genome regions
//   - browse: Interactively browse candidate SNPs
//   - serve: Run the HTTP API server
//   - cache: Manage the analysis cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging.
//
// # Example
//
//	import "github.com/tfomics/tfomics/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tfomics/tfomics/pkg/buildinfo"
	"github.com/tfomics/tfomics/pkg/cache"
	"github.com/tfomics/tfomics/pkg/pipeline"
)

// appName is the application name used for directories and display.
const appName = "tfomics"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tfomics",
		Short:        "tfomics analyses allele-specific transcription factor binding",
		Long:         `tfomics is a toolkit for allele-specific binding analysis: it reads AlleleSeq pipeline output, estimates binding effect sizes per variant, relates them to GWAS summary statistics through Mendelian randomisation, and prepares reference sequences for downstream models.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.shuffleCommand())
	root.AddCommand(c.asbCommand())
	root.AddCommand(c.mrCommand())
	root.AddCommand(c.extractCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	cache, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cache, nil, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/tfomics/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
