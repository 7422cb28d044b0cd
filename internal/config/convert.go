package config

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/adapter"
	"github.com/JonMunkholm/uploadkit/internal/adapter/s3adapter"
	"github.com/JonMunkholm/uploadkit/internal/core"
	"github.com/JonMunkholm/uploadkit/internal/history"
	"github.com/JonMunkholm/uploadkit/internal/session"
)

// parsePairs splits "key<sep>value" entries. Keys must be non-empty.
func parsePairs(entries []string, sep string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, sep)
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("entry %q is not in key%svalue form", e, sep)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// MetadataMap returns UPLOAD_METADATA as manager metadata.
func (c *Config) MetadataMap() core.Metadata {
	pairs, _ := parsePairs(c.Upload.Metadata, "=")
	if len(pairs) == 0 {
		return nil
	}
	m := make(core.Metadata, len(pairs))
	for k, v := range pairs {
		m[k] = v
	}
	return m
}

// HeaderMap returns UPLOAD_HEADERS keyed by header name.
func (c *Config) HeaderMap() map[string]string {
	pairs, _ := parsePairs(c.Adapter.Headers, ":")
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

// AcceptConfig builds the accept policy from the upload settings, overlaid
// with UPLOAD_ACCEPT_FILE when set.
func (c *Config) AcceptConfig() (accept.Config, error) {
	base := accept.Config{
		Accept:      accept.DefaultAccept(),
		MaxFileSize: c.Upload.MaxFileSize,
		MinFileSize: c.Upload.MinFileSize,
		MaxFiles:    c.Upload.MaxFiles,
	}
	if c.Upload.AcceptFile == "" {
		return base, nil
	}
	return accept.LoadFile(c.Upload.AcceptFile, base)
}

// AdapterSettings converts the adapter section for adapter.New.
func (c *Config) AdapterSettings() adapter.Config {
	return adapter.Config{
		Kind:           adapter.Kind(strings.ToLower(c.Adapter.Kind)),
		MockPreset:     c.Adapter.MockPreset,
		Endpoint:       c.Adapter.Endpoint,
		DeleteEndpoint: c.Adapter.DeleteEndpoint,
		Headers:        c.HeaderMap(),
		Timeout:        c.Adapter.Timeout,
		S3: s3adapter.Config{
			Bucket:          c.Adapter.S3Bucket,
			Region:          c.Adapter.S3Region,
			Endpoint:        c.Adapter.S3Endpoint,
			Prefix:          c.Adapter.S3Prefix,
			AccessKeyID:     c.Adapter.S3AccessKeyID,
			SecretAccessKey: c.Adapter.S3SecretAccessKey,
			PresignTTL:      c.Adapter.S3PresignTTL,
		},
		MaxConcurrent: c.Adapter.GlobalMaxConcurrent,
		MaxWait:       c.Adapter.MaxWait,
	}
}

// SessionSettings returns the per-session configuration.
func (c *Config) SessionSettings() (session.Config, error) {
	ac, err := c.AcceptConfig()
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		AutoUpload:    c.Upload.AutoUpload,
		MaxConcurrent: c.Upload.MaxConcurrent,
		Metadata:      c.MetadataMap(),
		Accept:        ac,
		TTL:           c.Upload.SessionTTL,
	}, nil
}

// PurgeSettings returns the history retention schedule.
func (c *Config) PurgeSettings() history.PurgeConfig {
	return history.PurgeConfig{
		RetentionDays: c.History.RetentionDays,
		CheckInterval: c.History.CheckInterval,
	}
}
