package core

// store.go holds the ordered record collection.
//
// Every mutation builds a new slice and swaps it in under the lock, so a
// snapshot handed out earlier is never changed underneath its reader.

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the single source of truth for the records of one upload set.
type Store struct {
	mu       sync.RWMutex
	records  []Record
	maxFiles int
	identity IdentityFunc
	now      func() time.Time
}

// NewStore creates an empty store. maxFiles <= 0 means unbounded; a nil
// identity uses DefaultIdentity.
func NewStore(maxFiles int, identity IdentityFunc) *Store {
	if identity == nil {
		identity = DefaultIdentity
	}
	return &Store{
		maxFiles: maxFiles,
		identity: identity,
		now:      time.Now,
	}
}

// AddAccepted runs admission for files, appends admitted records as pending
// and rejected ones as error records, and returns only the admitted records.
func (s *Store) AddAccepted(files []File) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	adm := Admit(s.records, files, s.maxFiles, s.identity)

	next := slices.Clone(s.records)
	admitted := make([]Record, 0, len(adm.Admitted))
	for _, f := range adm.Admitted {
		rec := s.newRecord(f, StatusPending, nil)
		next = append(next, rec)
		admitted = append(admitted, rec.clone())
	}
	for _, rej := range adm.Rejected {
		next = append(next, s.newRecord(rej.File, StatusError, rej.Codes))
	}
	s.records = next

	return admitted
}

// AddRejected appends error records for files rejected upstream, typically
// by accept-list validation, and returns them.
func (s *Store) AddRejected(rejections []Rejection) []Record {
	if len(rejections) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.records)
	added := make([]Record, 0, len(rejections))
	for _, rej := range rejections {
		rec := s.newRecord(rej.File, StatusError, rej.Codes)
		next = append(next, rec)
		added = append(added, rec.clone())
	}
	s.records = next

	return added
}

// UpdateProgress records upload progress for an uploading record. The value
// is clamped to [0,100] and never moves backwards. Unknown ids and records
// in any other state are left alone.
func (s *Store) UpdateProgress(id string, progress float64) bool {
	_, ok := s.setProgress(id, progress)
	return ok
}

func (s *Store) setProgress(id string, progress float64) (float64, bool) {
	var applied float64
	ok := s.update(id, func(r *Record) bool {
		if r.Status != StatusUploading {
			return false
		}
		p := min(max(progress, 0), 100)
		if p <= r.Progress {
			return false
		}
		r.Progress = p
		applied = p
		return true
	})
	return applied, ok
}

// UpdateStatus moves a record to status and, when appendErr is not empty,
// appends it to the error history. Unknown ids are a no-op.
func (s *Store) UpdateStatus(id string, status Status, appendErr string) bool {
	return s.update(id, func(r *Record) bool {
		r.Status = status
		if appendErr != "" {
			r.Errors = append(r.Errors, appendErr)
		}
		return true
	})
}

// Remove deletes a record and returns it.
func (s *Store) Remove(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Record{}, false
	}
	removed := s.records[i]
	s.records = slices.Delete(slices.Clone(s.records), i, i+1)
	return removed.clone(), true
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Record{}, false
	}
	return s.records[i].clone(), true
}

// Snapshot returns a copy of all records in admission order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records)
}

// Accepted returns every record whose status is not error: the working set
// eligible for upload, retry and completion tracking.
func (s *Store) Accepted() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Status != StatusError {
			out = append(out, r.clone())
		}
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Uploading reports whether any record is uploading.
func (s *Store) Uploading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.records, func(r Record) bool {
		return r.Status == StatusUploading
	})
}

// AllComplete reports whether the set is non-empty and nothing is uploading.
func (s *Store) AllComplete() bool {
	return s.Len() > 0 && !s.Uploading()
}

// update applies fn to a copy of the record and swaps in a new collection
// when fn reports a change.
func (s *Store) update(id string, fn func(*Record) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	rec := s.records[i].clone()
	if !fn(&rec) {
		return false
	}
	next := slices.Clone(s.records)
	next[i] = rec
	s.records = next
	return true
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.records, func(r Record) bool { return r.ID == id })
}

func (s *Store) newRecord(f File, status Status, codes []ErrorCode) Record {
	now := s.now()
	rec := Record{
		ID:      newRecordID(f.Name, now),
		File:    f,
		Status:  status,
		AddedAt: now,
	}
	for _, c := range codes {
		rec.Errors = append(rec.Errors, string(c))
	}
	return rec
}

// newRecordID builds "<name>-<unix nanos>-<salt>". The name is reduced to
// URL-safe characters so ids can travel in request paths.
func newRecordID(name string, now time.Time) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", sanitizeName(name), now.UnixNano(), salt)
}

func sanitizeName(name string) string {
	if name == "" {
		return "file"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
