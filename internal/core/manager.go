package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Manager drives the records of one upload set through their lifecycle.
// All methods are safe for concurrent use.
type Manager struct {
	adapter Adapter
	store   *Store
	opts    options
	log     *slog.Logger

	// ctx parents every background upload; Close cancels it.
	ctx  context.Context
	stop context.CancelFunc

	// mu guards uploads, hadUploading and batches, and is held across every
	// store mutation that moves a record into or out of uploading. Lock
	// order is mu, then the store lock.
	mu           sync.Mutex
	uploads      map[string]*activeUpload
	hadUploading bool
	batches      int

	wg sync.WaitGroup
}

// activeUpload is the cancellation token of one in-flight adapter call. An
// entry exists in Manager.uploads exactly while its record is uploading.
type activeUpload struct {
	ID     string
	Record Record
	ctx    context.Context
	Cancel context.CancelFunc
}

// NewManager creates a manager that uploads through adapter.
func NewManager(adapter Adapter, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Manager{
		adapter: adapter,
		store:   NewStore(o.maxFiles, o.identity),
		opts:    o,
		log:     o.logger.With("component", "upload_manager"),
		ctx:     ctx,
		stop:    stop,
		uploads: make(map[string]*activeUpload),
	}
}

// AddFiles admits files and returns the admitted records. Duplicates and
// files over the max-files limit are recorded as error records. With auto
// upload enabled every admitted record is moved to uploading before any
// adapter call starts.
func (m *Manager) AddFiles(files []File) []Record {
	if len(files) == 0 {
		return nil
	}

	admitted := m.store.AddAccepted(files)
	m.log.Debug("files admitted",
		"selected", len(files),
		"admitted", len(admitted),
	)
	m.opts.callbacks.filesAdded(cloneRecords(admitted))

	if !m.opts.autoUpload {
		return admitted
	}

	started := make([]*activeUpload, 0, len(admitted))
	for _, rec := range admitted {
		if up, ok := m.requestUpload(m.ctx, rec.ID, StatusPending); ok {
			started = append(started, up)
		}
	}
	for _, up := range started {
		m.goAwait(up)
	}

	return admitted
}

// AddRejected records files that were rejected before reaching the manager,
// for example by accept-list validation.
func (m *Manager) AddRejected(rejections []Rejection) []Record {
	added := m.store.AddRejected(rejections)
	if len(added) > 0 {
		m.log.Debug("rejected files recorded", "count", len(added))
	}
	return added
}

// StartUpload moves a pending or interrupted record to uploading and runs
// the adapter call in the background. It reports whether an upload started.
func (m *Manager) StartUpload(id string) bool {
	up, ok := m.requestUpload(m.ctx, id, StatusPending, StatusInterrupted)
	if !ok {
		return false
	}
	m.goAwait(up)
	return true
}

// UploadFile is StartUpload without the goroutine: it returns once the
// upload settled. Cancelling ctx aborts the call, which leaves the record
// interrupted.
func (m *Manager) UploadFile(ctx context.Context, id string) bool {
	up, ok := m.requestUpload(ctx, id, StatusPending, StatusInterrupted)
	if !ok {
		return false
	}
	m.awaitUpload(up)
	return true
}

// Retry restarts an interrupted record with progress reset to 0, keeping its
// id and error history. Records that no longer exist, or are not
// interrupted, are ignored.
func (m *Manager) Retry(id string) bool {
	return m.RetryContext(m.ctx, id)
}

// RetryContext is Retry with the upload also bound to ctx. Cancelling ctx
// aborts the restarted upload, leaving the record interrupted.
func (m *Manager) RetryContext(ctx context.Context, id string) bool {
	up, ok := m.requestUpload(ctx, id, StatusInterrupted)
	if !ok {
		return false
	}
	m.log.Info("upload retried", "file_id", id)
	m.opts.callbacks.retried(id)
	m.goAwait(up)
	return true
}

// Cancel aborts an uploading record. The record ends cancelled whatever the
// adapter does afterwards. Records without an upload in flight are ignored.
func (m *Manager) Cancel(ctx context.Context, id string) {
	m.mu.Lock()
	up := m.detachLocked(id)
	if up != nil {
		m.store.UpdateStatus(id, StatusCancelled, "")
	}
	fire := m.completionLocked()
	m.mu.Unlock()

	if up == nil {
		return
	}

	m.abort(ctx, up)
	m.log.Info("upload cancelled", "file_id", id)
	m.opts.callbacks.canceled(id)
	m.opts.callbacks.allComplete(fire)
}

// Remove drops a record locally, cancelling its upload first if one is in
// flight.
func (m *Manager) Remove(ctx context.Context, id string) {
	up, removed, fire := m.removeRecord(id)

	if up != nil {
		m.abort(ctx, up)
		m.opts.callbacks.canceled(id)
	}
	if removed {
		m.log.Debug("file removed", "file_id", id)
		m.opts.callbacks.removed(id)
	}
	m.opts.callbacks.allComplete(fire)
}

// Delete removes a record remotely and locally. An in-flight upload is
// cancelled first, then the adapter's Delete runs if the adapter has one and
// the file ever reached it, then the record is dropped.
//
// When the remote delete fails the record is kept, the failure is appended
// to its error history and returned.
func (m *Manager) Delete(ctx context.Context, id string) error {
	rec, ok := m.store.Get(id)
	if !ok {
		return nil
	}

	m.Cancel(ctx, id)

	if d, ok := m.adapter.(Deleter); ok && reachedAdapter(rec.Status) {
		if err := d.Delete(ctx, id); err != nil {
			msg := fmt.Sprintf("delete failed: %v", err)
			m.mu.Lock()
			m.store.update(id, func(r *Record) bool {
				r.Errors = append(r.Errors, msg)
				return true
			})
			m.mu.Unlock()

			m.log.Warn("remote delete failed", "file_id", id, "error", err)
			m.opts.callbacks.failed(id, msg)
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}

	up, removed, fire := m.removeRecord(id)
	if up != nil {
		// Restarted between the cancel and the remote delete.
		m.abort(ctx, up)
	}
	if removed {
		m.log.Info("file deleted", "file_id", id)
		m.opts.callbacks.deleted(id)
	}
	m.opts.callbacks.allComplete(fire)
	return nil
}

// Clear cancels every in-flight upload and drops all records.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	inFlight := m.uploads
	m.uploads = make(map[string]*activeUpload)
	m.store.Clear()
	m.hadUploading = false
	m.mu.Unlock()

	for id, up := range inFlight {
		m.abort(ctx, up)
		m.opts.callbacks.canceled(id)
	}
}

// Records returns a snapshot of every record in admission order.
func (m *Manager) Records() []Record {
	return m.store.Snapshot()
}

// Record returns a snapshot of one record.
func (m *Manager) Record(id string) (Record, bool) {
	return m.store.Get(id)
}

// Accepted returns the records whose status is not error.
func (m *Manager) Accepted() []Record {
	return m.store.Accepted()
}

// IsUploading reports whether any record is uploading.
func (m *Manager) IsUploading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads) > 0
}

// HasFiles reports whether any record exists.
func (m *Manager) HasFiles() bool {
	return m.store.Len() > 0
}

// Wait blocks until every background upload has settled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close aborts all background uploads and waits for them to settle. The
// aborted records end interrupted.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// requestUpload is the first phase of a start: if the record exists in one
// of the from states and has no upload in flight, it becomes uploading with
// progress 0 and gets a cancellation token.
func (m *Manager) requestUpload(parent context.Context, id string, from ...Status) (*activeUpload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.uploads[id]; busy {
		return nil, false
	}

	var rec Record
	ok := m.store.update(id, func(r *Record) bool {
		if !slices.Contains(from, r.Status) {
			return false
		}
		r.Status = StatusUploading
		r.Progress = 0
		rec = r.clone()
		return true
	})
	if !ok {
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	stopAfter := context.AfterFunc(m.ctx, cancel)

	up := &activeUpload{
		ID:     id,
		Record: rec,
		ctx:    ctx,
		Cancel: func() {
			stopAfter()
			cancel()
		},
	}
	m.uploads[id] = up
	m.hadUploading = true

	m.log.Debug("upload started", "file_id", id, "file", rec.File.Name)
	return up, true
}

// goAwait runs the second phase in the background.
func (m *Manager) goAwait(up *activeUpload) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in upload callback",
					"file_id", up.ID,
					"panic", r,
				)
			}
		}()
		m.awaitUpload(up)
	}()
}

// awaitUpload is the second phase of a start: it calls the adapter and
// settles the record with the outcome.
func (m *Manager) awaitUpload(up *activeUpload) {
	defer up.Cancel()

	res, err := m.callAdapter(up)
	m.settle(up, res, err)
}

func (m *Manager) callAdapter(up *activeUpload) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in adapter",
				"file_id", up.ID,
				"panic", r,
			)
			err = &RetryableError{Msg: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	return m.adapter.Upload(up.ctx, UploadInput{
		File:     up.Record.File,
		FileID:   up.ID,
		Metadata: m.opts.metadata,
		OnProgress: func(p float64) {
			m.progress(up, p)
		},
	})
}

func (m *Manager) progress(up *activeUpload, p float64) {
	m.mu.Lock()
	var (
		applied float64
		ok      bool
	)
	if m.uploads[up.ID] == up {
		applied, ok = m.store.setProgress(up.ID, p)
	}
	m.mu.Unlock()

	if ok {
		m.opts.callbacks.progress(up.ID, applied)
	}
}

func (m *Manager) settle(up *activeUpload, res Result, err error) {
	m.mu.Lock()
	if m.uploads[up.ID] != up {
		// Cancelled or removed while in flight. That path already settled
		// the record, so the adapter's outcome is dropped.
		m.mu.Unlock()
		m.log.Debug("late adapter outcome ignored", "file_id", up.ID, "error", err)
		return
	}
	delete(m.uploads, up.ID)

	var status Status
	if err == nil {
		status = StatusCompleted
		m.store.update(up.ID, func(r *Record) bool {
			r.Status = StatusCompleted
			r.Progress = 100
			r.Result = &res
			return true
		})
	} else {
		status = classify(err)
		m.store.UpdateStatus(up.ID, status, err.Error())
	}
	fire := m.completionLocked()
	m.mu.Unlock()

	switch status {
	case StatusCompleted:
		m.log.Info("upload completed", "file_id", up.ID, "url", res.URL)
		m.opts.callbacks.completed(up.ID, res)
	case StatusInterrupted:
		m.log.Warn("upload interrupted", "file_id", up.ID, "error", err)
		m.opts.callbacks.failed(up.ID, err.Error())
	default:
		m.log.Error("upload failed", "file_id", up.ID, "error", err)
		m.opts.callbacks.failed(up.ID, err.Error())
	}
	m.opts.callbacks.allComplete(fire)
}

// detachLocked releases the token of id and returns it, or nil when no
// upload is in flight.
func (m *Manager) detachLocked(id string) *activeUpload {
	up, ok := m.uploads[id]
	if !ok {
		return nil
	}
	delete(m.uploads, id)
	return up
}

func (m *Manager) removeRecord(id string) (*activeUpload, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up := m.detachLocked(id)
	_, removed := m.store.Remove(id)
	return up, removed, m.completionLocked()
}

// abort cancels the token and notifies the adapter, if it wants to know.
func (m *Manager) abort(ctx context.Context, up *activeUpload) {
	up.Cancel()

	c, ok := m.adapter.(Canceler)
	if !ok {
		return
	}
	if err := c.Cancel(ctx, up.ID); err != nil {
		m.log.Warn("adapter cancel failed", "file_id", up.ID, "error", err)
	}
}

// completionLocked reports whether OnAllFileUploadsComplete is due. It fires
// on the edge from "something uploading" to "records exist, none
// uploading", and never while UploadAll is between windows.
func (m *Manager) completionLocked() bool {
	if len(m.uploads) > 0 {
		m.hadUploading = true
		return false
	}
	if m.batches > 0 || !m.hadUploading {
		return false
	}
	m.hadUploading = false
	return m.store.Len() > 0
}

// reachedAdapter reports whether a record in status s may have a remote
// copy. Pending records were never sent; error records were either rejected
// at admission or refused by the server.
func reachedAdapter(s Status) bool {
	switch s {
	case StatusPending, StatusError:
		return false
	}
	return true
}
