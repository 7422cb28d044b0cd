package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

func newAcceptCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "accept [files...]",
		Short: "Show the accept list or check files against it",
		Long: `Without arguments, print the resolved accept configuration.
With files, report whether each one would be admitted and why not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.cfg.AcceptConfig()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printAccept(cmd.OutOrStdout(), cfg, output)
			}
			return checkFiles(cmd.OutOrStdout(), cfg, args)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or yaml")
	return cmd
}

func printAccept(w io.Writer, cfg accept.Config, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIME TYPE\tEXTENSIONS")
	for _, t := range cfg.Accept {
		fmt.Fprintf(tw, "%s\t%s\n", t.MimeType, strings.Join(t.ExtensionList(), ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFile size: %s to %s\n", accept.FormatSize(cfg.MinFileSize), accept.FormatSize(cfg.MaxFileSize))
	if cfg.MaxFiles > 0 {
		fmt.Fprintf(w, "Max files: %d\n", cfg.MaxFiles)
	} else {
		fmt.Fprintln(w, "Max files: unlimited")
	}
	return nil
}

// checkFiles prints one verdict per file. Files that exist but fail
// validation are not an error; unreadable paths are.
func checkFiles(w io.Writer, cfg accept.Config, paths []string) error {
	files, err := localFiles(paths)
	if err != nil {
		return err
	}

	v := cfg.Validator()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTYPE\tSIZE\tVERDICT")
	for _, f := range files {
		verdict := "ok"
		if codes := v.Validate(f); len(codes) > 0 {
			msgs := make([]string, len(codes))
			for i, c := range codes {
				msgs[i] = core.MessageFor(string(c))
			}
			verdict = strings.Join(msgs, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.MimeType, accept.FormatSize(f.Size), verdict)
	}
	return tw.Flush()
}
