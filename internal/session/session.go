// Package session maps browser sessions to upload managers. Each session owns
// one core.Manager; all sessions share one adapter, one notify hub and an
// optional history store. Idle sessions expire.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/google/uuid"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/core"
	"github.com/JonMunkholm/uploadkit/internal/history"
	"github.com/JonMunkholm/uploadkit/internal/notify"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often idle sessions are looked for.
const DefaultSweepInterval = time.Minute

const historyTimeout = 5 * time.Second

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Config is applied to every new session.
type Config struct {
	AutoUpload    bool
	MaxConcurrent int
	Metadata      core.Metadata
	Accept        accept.Config
	TTL           time.Duration

	// SweepInterval defaults to DefaultSweepInterval, or TTL when shorter.
	SweepInterval time.Duration
}

// Session is one upload set.
type Session struct {
	ID        string
	CreatedAt time.Time
	ClientIP  string
	UserAgent string

	Manager   *core.Manager
	Validator accept.Validator
	MaxFiles  int

	history  *history.Store
	log      *slog.Logger
	lastSeen atomic.Int64 // unix nanos
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Add validates files, records rejections and admits the rest. rejected
// holds the validation failures followed by the duplicate and over-limit
// records the manager created.
func (s *Session) Add(files []core.File) (admitted, rejected []core.Record) {
	ok, bad := s.Validator.Partition(files)

	known := make(map[string]struct{})
	for _, rec := range s.Manager.Records() {
		known[rec.ID] = struct{}{}
	}

	rejected = s.Manager.AddRejected(bad)
	admitted = s.Manager.AddFiles(ok)

	for _, rec := range slices.Concat(rejected, admitted) {
		known[rec.ID] = struct{}{}
	}
	for _, rec := range s.Manager.Records() {
		if _, seen := known[rec.ID]; !seen && rec.Status == core.StatusError {
			rejected = append(rejected, rec)
		}
	}
	return admitted, rejected
}

// Remove drops a record locally and logs it.
func (s *Session) Remove(ctx context.Context, id string) bool {
	rec, ok := s.Manager.Record(id)
	if !ok {
		return false
	}
	s.Manager.Remove(ctx, id)
	s.logHistory(history.ActionRemoved, rec)
	return true
}

// Delete removes a record remotely and locally and logs it. ok is false for
// unknown ids.
func (s *Session) Delete(ctx context.Context, id string) (ok bool, err error) {
	rec, ok := s.Manager.Record(id)
	if !ok {
		return false, nil
	}
	if err := s.Manager.Delete(ctx, id); err != nil {
		return true, err
	}
	s.logHistory(history.ActionDeleted, rec)
	return true, nil
}

func (s *Session) logHistory(action history.Action, rec core.Record) {
	if s.history == nil {
		return
	}
	e := history.FromRecord(s.ID, action, rec)
	e.IPAddress = s.ClientIP
	e.UserAgent = s.UserAgent

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if _, err := s.history.Log(ctx, e); err != nil {
		s.log.Warn("history write failed", "file_id", rec.ID, "action", action, "error", err)
	}
}

// Registry holds live sessions.
type Registry struct {
	adapter core.Adapter
	hub     *notify.Hub
	history *history.Store
	cfg     Config
	log     *slog.Logger

	// sessions expires idle entries; its delete hook closes the manager.
	sessions *ttlworker.Cache[string, *Session]
	stop     context.CancelFunc

	// live holds every session not yet ended. Entries leave it before their
	// manager is closed, so each manager is closed once.
	mu   sync.Mutex
	live map[string]*Session
}

// NewRegistry builds a registry. hub and store may be nil.
func NewRegistry(adapter core.Adapter, hub *notify.Hub, store *history.Store, cfg Config, logger *slog.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = min(DefaultSweepInterval, cfg.TTL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	r := &Registry{
		adapter: adapter,
		hub:     hub,
		history: store,
		cfg:     cfg,
		log:     logger.With("component", "session_registry"),
		stop:    stop,
		live:    make(map[string]*Session),
	}
	// The hook runs with the cache locked and must not call back into it.
	r.sessions = ttlworker.NewCacheOn(cfg.TTL, [4]func(string, *Session){
		nil, nil, func(id string, _ *Session) { r.forget(id) }, nil,
	})
	go r.sweep(ctx)
	return r
}

// Create starts a new session. The client address and user agent stored by
// history.ContextWithClient are attached to its history entries.
func (r *Registry) Create(ctx context.Context) *Session {
	ip, ua := history.ClientFromContext(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		ClientIP:  ip,
		UserAgent: ua,
		Validator: r.cfg.Accept.Validator(),
		MaxFiles:  r.cfg.Accept.MaxFiles,
		history:   r.history,
	}
	s.log = r.log.With("session_id", s.ID)
	s.touch()

	s.Manager = core.NewManager(r.adapter,
		core.WithAutoUpload(r.cfg.AutoUpload),
		core.WithMaxConcurrent(r.cfg.MaxConcurrent),
		core.WithMaxFiles(r.cfg.Accept.MaxFiles),
		core.WithMetadata(r.cfg.Metadata),
		core.WithLogger(s.log),
		core.WithCallbacks(r.callbacks(s)),
	)

	r.sessions.Set(s.ID, s)
	r.mu.Lock()
	r.live[s.ID] = s
	r.mu.Unlock()

	s.log.Info("session created", "client_ip", ip)
	return s
}

// Get returns a live session and refreshes its expiry.
func (r *Registry) Get(id string) (*Session, error) {
	s := r.sessions.Get(id)
	if s == nil {
		r.forget(id)
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// End closes a session's manager and forgets it.
func (r *Registry) End(id string) error {
	r.mu.Lock()
	s, ok := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	r.sessions.Delete(id)

	if !ok {
		return ErrNotFound
	}
	s.Manager.Close()
	s.log.Info("session ended")
	return nil
}

// Len returns the number of sessions not yet ended.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Close stops the sweeper and aborts every session's uploads.
func (r *Registry) Close() {
	r.stop()

	r.mu.Lock()
	all := r.live
	r.live = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range all {
		r.sessions.Delete(id)
		s.Manager.Close()
	}
}

// sweep expires idle sessions until ctx is done. The cache's own collector
// only runs once a minute.
func (r *Registry) sweep(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.expireIdle(now)
		}
	}
}

func (r *Registry) expireIdle(now time.Time) {
	var idle []string
	r.mu.Lock()
	for id, s := range r.live {
		if s.idleSince(now) >= r.cfg.TTL {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.sessions.Delete(id)
		r.forget(id)
	}
	if len(idle) > 0 {
		r.log.Debug("idle sessions swept", "count", len(idle))
	}
}

// forget drops an expired session, aborting its uploads. It is a no-op for
// sessions already ended.
func (r *Registry) forget(id string) {
	r.mu.Lock()
	s, ok := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	if ok {
		s.log.Info("session expired")
		go s.Manager.Close()
	}
}

func (r *Registry) publish(ev notify.Event) {
	if r.hub != nil {
		r.hub.Publish(ev)
	}
}

func (r *Registry) callbacks(s *Session) core.Callbacks {
	record := func(id string) core.Record {
		rec, _ := s.Manager.Record(id)
		return rec
	}

	return core.Callbacks{
		OnFilesAdded: func(recs []core.Record) {
			ids := make([]string, len(recs))
			for i, rec := range recs {
				ids[i] = rec.ID
			}
			r.publish(notify.Event{Type: notify.EventFilesAdded, SessionID: s.ID, Files: ids})
		},
		OnFileProgress: func(id string, p float64) {
			r.publish(notify.Event{Type: notify.EventProgress, SessionID: s.ID, FileID: id, Progress: p, Status: core.StatusUploading})
		},
		OnFileUploadComplete: func(id string, res core.Result) {
			r.publish(notify.Event{Type: notify.EventCompleted, SessionID: s.ID, FileID: id, Progress: 100, Status: core.StatusCompleted, Result: &res})
			s.logHistory(history.ActionCompleted, record(id))
		},
		OnFileUploadError: func(id, msg string) {
			rec := record(id)
			r.publish(notify.Event{Type: notify.EventFailed, SessionID: s.ID, FileID: id, Status: rec.Status, Message: msg})
			s.logHistory(history.ActionFailed, rec)
		},
		OnFileUploadCanceled: func(id string) {
			rec := record(id)
			r.publish(notify.Event{Type: notify.EventCancelled, SessionID: s.ID, FileID: id, Status: core.StatusCancelled})
			if rec.ID != "" {
				s.logHistory(history.ActionCancelled, rec)
			}
		},
		OnFileUploadRetried: func(id string) {
			r.publish(notify.Event{Type: notify.EventRetried, SessionID: s.ID, FileID: id, Status: core.StatusUploading})
			s.logHistory(history.ActionRetried, record(id))
		},
		OnFileRemoved: func(id string) {
			r.publish(notify.Event{Type: notify.EventRemoved, SessionID: s.ID, FileID: id})
		},
		OnFileDeleted: func(id string) {
			r.publish(notify.Event{Type: notify.EventDeleted, SessionID: s.ID, FileID: id})
		},
		OnAllFileUploadsComplete: func() {
			r.publish(notify.Event{Type: notify.EventAllCompleted, SessionID: s.ID})
		},
	}
}
