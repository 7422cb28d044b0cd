package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/adapter"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

// retryBackoff is the pause before each retry round, multiplied by the round.
var retryBackoff = time.Second

type uploadOptions struct {
	adapter       string
	endpoint      string
	preset        string
	maxConcurrent int
	maxFiles      int
	retries       int
	meta          []string
}

func newUploadCmd(g *globals) *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Validate and upload local files",
		Long: `Validate local files against the accept list, then upload the admitted ones
in windows of --max-concurrent. Interrupted uploads are retried up to --retries
times. Exits non-zero when any file did not complete.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, g, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.adapter, "adapter", "", "Adapter: mock, http or s3 (default: UPLOAD_ADAPTER)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Upload endpoint for the http adapter (default: UPLOAD_ENDPOINT)")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "Mock scenario: normal, fast, slow, interrupted or error")
	cmd.Flags().IntVar(&opts.maxConcurrent, "max-concurrent", 0, "Files uploaded at once (default: UPLOAD_MAX_CONCURRENT)")
	cmd.Flags().IntVar(&opts.maxFiles, "max-files", -1, "Accepted files limit, 0 for none (default: UPLOAD_MAX_FILES)")
	cmd.Flags().IntVar(&opts.retries, "retries", 2, "Retry rounds for interrupted uploads")
	cmd.Flags().StringArrayVar(&opts.meta, "meta", nil, "Metadata key=value sent with every file (repeatable)")

	return cmd
}

func runUpload(cmd *cobra.Command, g *globals, opts *uploadOptions, paths []string) error {
	cfg := g.cfg
	if opts.adapter != "" {
		cfg.Adapter.Kind = opts.adapter
	}
	if opts.endpoint != "" {
		cfg.Adapter.Endpoint = opts.endpoint
	}
	if opts.preset != "" {
		cfg.Adapter.MockPreset = opts.preset
	}
	if opts.maxConcurrent > 0 {
		cfg.Upload.MaxConcurrent = opts.maxConcurrent
	}
	if opts.maxFiles >= 0 {
		cfg.Upload.MaxFiles = opts.maxFiles
	}
	cfg.Upload.Metadata = append(cfg.Upload.Metadata, opts.meta...)
	if err := cfg.Validate(); err != nil {
		return err
	}

	acceptCfg, err := cfg.AcceptConfig()
	if err != nil {
		return err
	}

	files, err := localFiles(paths)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ac := cfg.AdapterSettings()
	// The manager windows transfers itself; a process-wide limiter only
	// matters when many managers share an adapter.
	ac.MaxConcurrent = 0
	uploader, _, err := adapter.New(ctx, ac, g.slogger())
	if err != nil {
		return err
	}

	progress := newProgressPrinter(g)
	m := core.NewManager(uploader,
		core.WithAutoUpload(false),
		core.WithMaxConcurrent(cfg.Upload.MaxConcurrent),
		core.WithMaxFiles(acceptCfg.MaxFiles),
		core.WithMetadata(cfg.MetadataMap()),
		core.WithLogger(g.slogger()),
		core.WithCallbacks(progress.callbacks()),
	)
	defer m.Close()

	ok, bad := acceptCfg.Validator().Partition(files)
	m.AddRejected(bad)
	admitted := m.AddFiles(ok)
	g.log.Info("files admitted", "selected", len(files), "admitted", len(admitted))

	m.UploadAll(ctx)

	retryInterrupted(ctx, m, opts.retries, g.log)

	recs := m.Records()
	printSummary(cmd.OutOrStdout(), recs)

	failed := 0
	for _, rec := range recs {
		if rec.Status != core.StatusCompleted {
			failed++
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upload interrupted: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files did not upload", failed, len(recs))
	}
	return nil
}

// retryInterrupted restarts interrupted records for up to rounds rounds,
// pausing retryBackoff times the round number before each. The restarted
// uploads are bound to ctx, so cancelling it stops the round.
func retryInterrupted(ctx context.Context, m *core.Manager, rounds int, log *charm.Logger) {
	for round := 1; round <= rounds && ctx.Err() == nil; round++ {
		var interrupted []core.Record
		for _, rec := range m.Records() {
			if rec.Retryable() {
				interrupted = append(interrupted, rec)
			}
		}
		if len(interrupted) == 0 {
			return
		}

		log.Warn("retrying interrupted uploads", "round", round, "files", len(interrupted))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff * time.Duration(round)):
		}
		for _, rec := range interrupted {
			m.RetryContext(ctx, rec.ID)
		}
		m.Wait()
	}
}

// localFiles stats and sniffs every path. Directories are rejected.
func localFiles(paths []string) ([]core.File, error) {
	files := make([]core.File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s: not a regular file", p)
		}
		mime, err := accept.DetectFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, core.File{
			Name:     filepath.Base(p),
			Size:     info.Size(),
			MimeType: mime,
			Payload:  core.PathPayload(p),
		})
	}
	return files, nil
}

// progressPrinter logs each file at quarter steps and on settlement.
type progressPrinter struct {
	g *globals

	mu    sync.Mutex
	names map[string]string
	last  map[string]int
}

func newProgressPrinter(g *globals) *progressPrinter {
	return &progressPrinter{g: g, names: make(map[string]string), last: make(map[string]int)}
}

func (p *progressPrinter) name(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.names[id]; ok {
		return n
	}
	return id
}

func (p *progressPrinter) callbacks() core.Callbacks {
	return core.Callbacks{
		OnFilesAdded: func(recs []core.Record) {
			p.mu.Lock()
			for _, rec := range recs {
				p.names[rec.ID] = rec.File.Name
			}
			p.mu.Unlock()
		},
		OnFileProgress: func(id string, pct float64) {
			step := int(pct) / 25
			p.mu.Lock()
			prev, seen := p.last[id]
			p.last[id] = step
			p.mu.Unlock()
			if seen && step <= prev || step == 0 || step == 4 {
				return
			}
			p.g.log.Info("uploading", "file", p.name(id), "progress", fmt.Sprintf("%d%%", step*25))
		},
		OnFileUploadComplete: func(id string, res core.Result) {
			p.g.log.Info("uploaded", "file", p.name(id), "url", res.URL)
		},
		OnFileUploadError: func(id, msg string) {
			p.g.log.Error("upload failed", "file", p.name(id), "error", msg)
		},
		OnFileUploadRetried: func(id string) {
			p.mu.Lock()
			delete(p.last, id)
			p.mu.Unlock()
		},
	}
}

func printSummary(w io.Writer, recs []core.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tSTATUS\tDETAILS")
	for _, rec := range recs {
		details := ""
		switch {
		case rec.Result != nil:
			details = rec.Result.URL
		case len(rec.Errors) > 0:
			msgs := make([]string, len(rec.Errors))
			for i, e := range rec.Errors {
				msgs[i] = core.MessageFor(e)
			}
			details = strings.Join(msgs, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.File.Name, accept.FormatSize(rec.File.Size), rec.Status, details)
	}
	_ = tw.Flush()
}
