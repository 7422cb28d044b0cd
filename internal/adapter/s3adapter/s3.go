// Package s3adapter stores uploaded files in an S3-compatible bucket.
package s3adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	now = time.Now
)

// API is the subset of *s3.Client the adapter calls.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient the adapter calls.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config selects the bucket and credentials.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // for MinIO and other S3-compatible stores
	Prefix   string

	AccessKeyID     string
	SecretAccessKey string

	// PresignTTL, when positive, makes Result.URL a presigned GET link valid
	// for that long instead of a plain object URL.
	PresignTTL time.Duration

	Logger *slog.Logger
}

// Adapter is a core.Adapter and core.Deleter writing one object per file.
type Adapter struct {
	cfg     Config
	api     API
	presign Presigner
	log     *slog.Logger

	mu   sync.Mutex
	keys map[string]string // file ID -> object key
}

// New loads the AWS configuration and builds an S3 client.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3adapter: bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3adapter: load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(cfg, client, newS3PresignClient(client)), nil
}

// NewWithClient wires an adapter to an existing client. presign may be nil
// when cfg.PresignTTL is zero.
func NewWithClient(cfg Config, api API, presign Presigner) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:     cfg,
		api:     api,
		presign: presign,
		log:     logger.With("component", "s3_adapter", "bucket", cfg.Bucket),
		keys:    make(map[string]string),
	}
}

// Key returns the object key for a file uploaded at t:
// <prefix>/<yyyy>/<mm>/<dd>/<fileID>.
func (a *Adapter) Key(fileID string, t time.Time) string {
	return path.Join(a.cfg.Prefix, fmt.Sprintf("%04d/%02d/%02d", t.Year(), t.Month(), t.Day()), fileID)
}

// Upload writes the file as one object.
func (a *Adapter) Upload(ctx context.Context, in core.UploadInput) (core.Result, error) {
	if in.File.Payload == nil {
		return core.Result{}, core.Fatal("Cannot read file", errors.New("no content"))
	}
	src, err := in.File.Payload.Open()
	if err != nil {
		return core.Result{}, core.Fatal("Cannot read file", err)
	}
	defer src.Close()

	body, err := seekable(src)
	if err != nil {
		return core.Result{}, core.Fatal("Cannot read file", err)
	}

	key := a.Key(in.FileID, now().UTC())
	contentType := in.File.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          &progressBody{rs: body, total: in.File.Size, fn: in.OnProgress},
		ContentLength: aws.Int64(in.File.Size),
		ContentType:   aws.String(contentType),
		Metadata:      objectMetadata(in),
	})
	if err != nil {
		return core.Result{}, classify(ctx, err)
	}

	a.mu.Lock()
	a.keys[in.FileID] = key
	a.mu.Unlock()

	if in.OnProgress != nil {
		in.OnProgress(100)
	}

	link, err := a.objectURL(ctx, key)
	if err != nil {
		a.log.Warn("presign failed, returning plain object url", "key", key, "error", err)
		link = a.plainURL(key)
	}

	meta := map[string]any{
		"bucket": a.cfg.Bucket,
		"key":    key,
	}
	if out.ETag != nil {
		meta["etag"] = strings.Trim(*out.ETag, `"`)
	}
	if out.VersionId != nil {
		meta["versionId"] = *out.VersionId
	}

	return core.Result{URL: link, Metadata: meta}, nil
}

// Delete removes the object written for fileID. Files this adapter never
// stored are ignored.
func (a *Adapter) Delete(ctx context.Context, fileID string) error {
	a.mu.Lock()
	key, ok := a.keys[fileID]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	if _, err := a.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", a.cfg.Bucket, key, err)
	}

	a.mu.Lock()
	delete(a.keys, fileID)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) objectURL(ctx context.Context, key string) (string, error) {
	if a.cfg.PresignTTL <= 0 || a.presign == nil {
		return a.plainURL(key), nil
	}
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.cfg.PresignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (a *Adapter) plainURL(key string) string {
	if a.cfg.Endpoint != "" {
		u, err := url.JoinPath(a.cfg.Endpoint, a.cfg.Bucket, key)
		if err == nil {
			return u
		}
	}
	return "s3://" + a.cfg.Bucket + "/" + key
}

func objectMetadata(in core.UploadInput) map[string]string {
	meta := map[string]string{
		"file-id":       in.FileID,
		"original-name": url.QueryEscape(in.File.Name),
	}
	for k, v := range in.Metadata {
		meta[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return meta
}

// classify maps S3 failures onto the retry contract: client errors are
// permanent except timeouts and throttling.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return core.Retryable("Upload cancelled", err)
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		code := withStatus.HTTPStatusCode()
		switch {
		case code == 408 || code == 429:
			return core.Retryable("Server busy", err)
		case code >= 400 && code < 500:
			return core.Fatal("Upload failed: "+apiCode(err, code), err)
		case code >= 500:
			return core.Retryable("Server error: "+apiCode(err, code), err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return core.Fatal("Upload failed: "+apiErr.ErrorCode(), err)
	}
	return core.Retryable("Network error occurred", err)
}

func apiCode(err error, status int) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}
	return fmt.Sprintf("HTTP %d", status)
}

// seekable returns r as an io.ReadSeeker, buffering it when it cannot seek.
// The SDK needs to rewind the body to sign and retry requests.
func seekable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// progressBody reports how far the SDK has read the object body. A rewind
// for a retried request moves progress back with it; the manager ignores
// the regression.
type progressBody struct {
	rs    io.ReadSeeker
	total int64
	read  int64
	fn    func(float64)
}

func (p *progressBody) Read(b []byte) (int, error) {
	n, err := p.rs.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.fn != nil && p.total > 0 {
			p.fn(min(float64(p.read)*100/float64(p.total), 100))
		}
	}
	return n, err
}

func (p *progressBody) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.rs.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
