package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/uploadkit/internal/adapter/httpadapter"
	"github.com/JonMunkholm/uploadkit/internal/adapter/mockadapter"
	"github.com/JonMunkholm/uploadkit/internal/adapter/s3adapter"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

// Kind names a transport.
type Kind string

const (
	KindMock Kind = "mock"
	KindHTTP Kind = "http"
	KindS3   Kind = "s3"
)

// Config selects and configures the transport shared by all managers.
type Config struct {
	Kind Kind

	// mock
	MockPreset string

	// http
	Endpoint       string
	DeleteEndpoint string
	Headers        map[string]string
	Timeout        time.Duration

	// s3
	S3 s3adapter.Config

	// Process-wide cap on concurrent transfers. Zero disables the limiter.
	MaxConcurrent int
	MaxWait       time.Duration
}

// New builds the configured adapter. When MaxConcurrent is positive the
// returned limiter is non-nil and already wraps the adapter.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (core.Adapter, *Limiter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		a   core.Adapter
		err error
	)
	switch cfg.Kind {
	case KindMock, "":
		mc := mockadapter.Preset(cfg.MockPreset)
		mc.Logger = logger
		a = mockadapter.New(mc)
	case KindHTTP:
		a, err = httpadapter.New(httpadapter.Config{
			Endpoint:       cfg.Endpoint,
			DeleteEndpoint: cfg.DeleteEndpoint,
			Headers:        cfg.Headers,
			Timeout:        cfg.Timeout,
			Logger:         logger,
		})
	case KindS3:
		sc := cfg.S3
		sc.Logger = logger
		a, err = s3adapter.New(ctx, sc)
	default:
		return nil, nil, fmt.Errorf("unknown adapter kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.MaxConcurrent <= 0 {
		return a, nil, nil
	}
	l := NewLimiter(cfg.MaxConcurrent, cfg.MaxWait)
	return Limit(a, l), l, nil
}
