// Package mockadapter simulates uploads without a network. It drives
// progress on a timer and can be told to fail, to drop the connection part
// way, or to run fast or slow, which is what demos and tests need to show
// every state a record can reach.
package mockadapter

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// Scenario selects how simulated uploads behave.
type Scenario string

const (
	ScenarioSuccess     Scenario = "success"
	ScenarioError       Scenario = "error"
	ScenarioInterrupted Scenario = "interrupted"
	ScenarioSlow        Scenario = "slow"
	ScenarioFast        Scenario = "fast"
)

const (
	defaultDuration    = 2 * time.Second
	defaultSteps       = 20
	defaultInterruptAt = 30

	defaultErrorMessage     = "Unsupported file type"
	defaultInterruptMessage = "Network connection lost"
	cancelledMessage        = "Upload cancelled"
)

// Config tunes a simulated upload.
type Config struct {
	Scenario Scenario

	// Duration is the total time of a successful upload, spread evenly over
	// Steps progress ticks.
	Duration time.Duration
	Steps    int

	// InterruptAt is the percentage at which the interrupted scenario drops
	// the transfer.
	InterruptAt float64

	// ErrorMessage replaces the default failure text of the error and
	// interrupted scenarios.
	ErrorMessage string

	// Delay is waited before the first progress tick.
	Delay time.Duration

	Logger *slog.Logger
}

// Preset returns the named configuration: normal, fast, slow, interrupted
// or error. Unknown names return the normal preset.
func Preset(name string) Config {
	switch name {
	case "fast":
		return Config{Scenario: ScenarioFast, Duration: 800 * time.Millisecond, Steps: 10}
	case "slow":
		return Config{Scenario: ScenarioSlow, Duration: 10 * time.Second, Steps: 30}
	case "interrupted":
		return Config{Scenario: ScenarioInterrupted, Duration: 2 * time.Second, Steps: 20, InterruptAt: defaultInterruptAt}
	case "error":
		return Config{Scenario: ScenarioError}
	default:
		return Config{
			Scenario: ScenarioSuccess,
			Duration: 2*time.Second + rand.N(time.Second),
			Steps:    20,
		}
	}
}

// Adapter is a core.Adapter, core.Canceler and core.Deleter that never
// leaves the process.
type Adapter struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	attempts  int
	cancelled map[string]bool
	uploaded  map[string]core.Result
}

// New returns a mock adapter. Zero fields of cfg take their defaults.
func New(cfg Config) *Adapter {
	if cfg.Scenario == "" {
		cfg.Scenario = ScenarioSuccess
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}
	if cfg.Steps <= 0 {
		cfg.Steps = defaultSteps
	}
	if cfg.InterruptAt <= 0 {
		cfg.InterruptAt = defaultInterruptAt
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		log:       logger.With("component", "mock_adapter", "scenario", string(cfg.Scenario)),
		cancelled: make(map[string]bool),
		uploaded:  make(map[string]core.Result),
	}
}

// Upload simulates one transfer.
func (a *Adapter) Upload(ctx context.Context, in core.UploadInput) (core.Result, error) {
	if a.cfg.Scenario == ScenarioError {
		return core.Result{}, core.Fatal(a.message(defaultErrorMessage), nil)
	}

	a.mu.Lock()
	delete(a.cancelled, in.FileID)
	a.attempts++
	// Interrupted runs alternate: odd attempts drop, even attempts succeed,
	// so a retry of an interrupted file goes through.
	interrupt := a.cfg.Scenario == ScenarioInterrupted && a.attempts%2 == 1
	a.mu.Unlock()

	if err := sleep(ctx, a.cfg.Delay); err != nil {
		return core.Result{}, core.Retryable(cancelledMessage, err)
	}

	tick := a.cfg.Duration / time.Duration(a.cfg.Steps)
	for i := 0; i <= a.cfg.Steps; i++ {
		if err := sleep(ctx, tick); err != nil {
			return core.Result{}, core.Retryable(cancelledMessage, err)
		}
		if a.isCancelled(in.FileID) {
			return core.Result{}, core.Retryable(cancelledMessage, nil)
		}

		pct := float64(i) * 100 / float64(a.cfg.Steps)
		if in.OnProgress != nil {
			in.OnProgress(pct)
		}

		if interrupt && pct >= a.cfg.InterruptAt {
			a.log.Debug("simulating dropped connection", "file_id", in.FileID, "progress", pct)
			return core.Result{}, core.Retryable(a.message(defaultInterruptMessage), nil)
		}
	}

	res := core.Result{
		URL: "mock://uploaded/" + in.File.Name,
		Metadata: map[string]any{
			"fileName":   in.File.Name,
			"fileSize":   in.File.Size,
			"fileType":   in.File.MimeType,
			"uploadedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}

	a.mu.Lock()
	a.uploaded[in.FileID] = res
	a.mu.Unlock()

	return res, nil
}

// Cancel marks the upload so the next tick stops it.
func (a *Adapter) Cancel(_ context.Context, fileID string) error {
	a.mu.Lock()
	a.cancelled[fileID] = true
	a.mu.Unlock()
	return nil
}

// Delete forgets an upload. Files that never completed have no remote copy
// and count as already deleted.
func (a *Adapter) Delete(_ context.Context, fileID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.uploaded[fileID]; !ok {
		a.log.Debug("delete of unknown upload", "file_id", fileID)
		return nil
	}
	delete(a.uploaded, fileID)
	return nil
}

// Uploaded returns the result stored for a completed upload.
func (a *Adapter) Uploaded(fileID string) (core.Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.uploaded[fileID]
	return res, ok
}

func (a *Adapter) isCancelled(fileID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled[fileID]
}

func (a *Adapter) message(fallback string) string {
	if a.cfg.ErrorMessage != "" {
		return a.cfg.ErrorMessage
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
