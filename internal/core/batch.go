package core

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// UploadAll uploads every pending record in windows of the configured
// concurrency. Each window is fully settled, successes and failures alike,
// before the next one starts. It returns when the last window settled or,
// between windows, when ctx is done.
//
// Records that leave pending while UploadAll runs (removed, started by
// someone else) are skipped.
func (m *Manager) UploadAll(ctx context.Context) {
	pending := m.pendingIDs()
	if len(pending) == 0 {
		return
	}

	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
	defer m.endBatch()

	m.log.Info("batch upload started",
		"files", len(pending),
		"max_concurrent", m.opts.maxConcurrent,
	)

	for window := range slices.Chunk(pending, m.opts.maxConcurrent) {
		if ctx.Err() != nil {
			m.log.Info("batch upload stopped", "error", ctx.Err())
			return
		}
		m.runWindow(ctx, window)
	}
}

// runWindow moves the whole window to uploading, then awaits all of it.
func (m *Manager) runWindow(ctx context.Context, ids []string) {
	started := make([]*activeUpload, 0, len(ids))
	for _, id := range ids {
		if up, ok := m.requestUpload(ctx, id, StatusPending); ok {
			started = append(started, up)
		}
	}

	var g errgroup.Group
	for _, up := range started {
		g.Go(func() error {
			m.awaitUpload(up)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) endBatch() {
	m.mu.Lock()
	m.batches--
	fire := m.completionLocked()
	m.mu.Unlock()

	m.opts.callbacks.allComplete(fire)
}

func (m *Manager) pendingIDs() []string {
	var ids []string
	for _, r := range m.store.Accepted() {
		if r.Status == StatusPending {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
