// Package cli implements uploadctl, which admits local files into an upload
// manager and drives them through an adapter.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/uploadkit/internal/config"
)

// globals holds the persistent flags and what PersistentPreRunE derives
// from them.
type globals struct {
	acceptFile string
	verbose    bool

	cfg *config.Config
	log *charm.Logger
}

// NewRootCmd builds the uploadctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "uploadctl",
		Short:         "Upload files through a configured adapter",
		Long:          "Validate local files against an accept list and upload them through the mock, HTTP or S3 adapter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; real environment variables win.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if g.acceptFile != "" {
				cfg.Upload.AcceptFile = g.acceptFile
			}
			g.cfg = cfg

			g.log = charm.NewWithOptions(cmd.ErrOrStderr(), charm.Options{
				ReportTimestamp: true,
				TimeFormat:      time.Kitchen,
				Level:           charm.InfoLevel,
			})
			if g.verbose {
				g.log.SetLevel(charm.DebugLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.acceptFile, "accept", "", "YAML file with the accept list (default: UPLOAD_ACCEPT_FILE or pdf, csv, zip)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log adapter and manager activity")

	root.AddCommand(newUploadCmd(g))
	root.AddCommand(newAcceptCmd(g))
	return root
}

// Execute runs uploadctl with os.Args.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// slogger exposes the CLI logger to packages that log through slog. Their
// records only show with --verbose, apart from warnings.
func (g *globals) slogger() *slog.Logger {
	l := g.log.With()
	if !g.verbose {
		l.SetLevel(charm.WarnLevel)
	}
	return slog.New(l)
}
