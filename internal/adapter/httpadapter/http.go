// Package httpadapter uploads files as multipart/form-data POST requests.
//
// The server is expected to answer 2xx with a JSON body {"url": ..., "metadata": {...}}.
// 4xx answers are permanent failures; anything else, including transport
// errors and timeouts, can be retried.
package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

const (
	DefaultFieldName = "file"
	DefaultTimeout   = 5 * time.Minute
)

// Config describes the upload endpoint.
type Config struct {
	// Endpoint receives the multipart POST.
	Endpoint string

	// DeleteEndpoint, when set, receives DELETE {DeleteEndpoint}/{fileID}
	// for files removed after upload. Defaults to Endpoint.
	DeleteEndpoint string

	FieldName string
	Headers   map[string]string
	Timeout   time.Duration
	Client    *http.Client
	Logger    *slog.Logger
}

// Adapter is a core.Adapter and core.Deleter backed by net/http.
type Adapter struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("httpadapter: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.DeleteEndpoint == "" {
		cfg.DeleteEndpoint = cfg.Endpoint
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		cfg:    cfg,
		client: client,
		log:    logger.With("component", "http_adapter"),
	}, nil
}

type uploadResponse struct {
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata"`
}

// Upload streams the file to the endpoint.
func (a *Adapter) Upload(ctx context.Context, in core.UploadInput) (core.Result, error) {
	if in.File.Payload == nil {
		return core.Result{}, core.Fatal("Cannot read file", errors.New("no content"))
	}
	src, err := in.File.Payload.Open()
	if err != nil {
		return core.Result{}, core.Fatal("Cannot read file", err)
	}
	defer src.Close()

	meta, err := sonic.Marshal(in.Metadata)
	if err != nil {
		return core.Result{}, core.Fatal("Invalid metadata", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(a.writeBody(mw, in, meta, &progressReader{
			r:     src,
			total: in.File.Size,
			fn:    in.OnProgress,
		}))
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.cfg.Endpoint, pr)
	if err != nil {
		return core.Result{}, core.Fatal("Invalid request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return core.Result{}, a.transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	return a.decode(resp, in.FileID)
}

func (a *Adapter) writeBody(mw *multipart.Writer, in core.UploadInput, meta []byte, body io.Reader) error {
	if err := mw.WriteField("fileId", in.FileID); err != nil {
		return err
	}
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile(a.cfg.FieldName, in.File.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

func (a *Adapter) transportError(parent, reqCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return core.Retryable("Upload cancelled", err)
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return core.Retryable("Upload timeout", err)
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return core.Retryable("Upload timeout", err)
	}
	return core.Retryable("Network error occurred", err)
}

func (a *Adapter) decode(resp *http.Response, fileID string) (core.Result, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Result{}, core.Retryable("Network error occurred", err)
	}

	status := statusText(resp)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out uploadResponse
		if err := sonic.Unmarshal(body, &out); err != nil {
			return core.Result{}, core.Fatal("Invalid server response", err)
		}
		if out.URL == "" {
			out.URL = strings.TrimRight(a.cfg.Endpoint, "/") + "/" + url.PathEscape(fileID)
		}
		return core.Result{URL: out.URL, Metadata: out.Metadata}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		a.log.Debug("upload rejected", "status", resp.StatusCode, "body", truncate(body, 200))
		return core.Result{}, core.Fatal("Upload failed: "+status, nil)
	default:
		return core.Result{}, core.Retryable("Server error: "+status, nil)
	}
}

// Delete asks the server to drop an uploaded file. A 404 counts as done.
func (a *Adapter) Delete(ctx context.Context, fileID string) error {
	target := strings.TrimRight(a.cfg.DeleteEndpoint, "/") + "/" + url.PathEscape(fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("delete %s: %s", fileID, statusText(resp))
}

// statusText returns the reason phrase of resp, e.g. "Bad Request".
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strconv.Itoa(resp.StatusCode)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// progressReader reports the share of total read so far.
type progressReader struct {
	r     io.Reader
	total int64
	read  atomic.Int64
	fn    func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil && p.total > 0 {
		done := p.read.Add(int64(n))
		p.fn(min(float64(done)*100/float64(p.total), 100))
	}
	return n, err
}
