package web

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

// multipartMemory is the part of a form kept in memory; the rest spills to
// temporary files until the payload is read.
const multipartMemory = 32 << 20

// sniffLen is how much of a part is read to detect its type.
const sniffLen = 3072

// addFilesResponse reports the outcome of one admission request.
type addFilesResponse struct {
	Admitted []core.Record `json:"admitted"`
	Rejected []core.Record `json:"rejected"`
}

// handleAddFiles admits the files of a multipart form. Parts may be named
// "files" or "file". Rejected files are recorded too and returned
// separately.
func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, r, fmt.Errorf("parse multipart form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := slices.Concat(r.MultipartForm.File["files"], r.MultipartForm.File["file"])
	if len(headers) == 0 {
		s.respondError(w, r, errNoFiles, http.StatusBadRequest)
		return
	}

	files := make([]core.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		files = append(files, f)
	}

	admitted, rejected := sess.Add(files)
	s.log.Info("files received",
		"session_id", sess.ID,
		"admitted", len(admitted),
		"rejected", len(rejected),
	)

	status := http.StatusCreated
	if len(admitted) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSONStatus(w, status, addFilesResponse{Admitted: nonNil(admitted), Rejected: nonNil(rejected)})
}

// readPart loads a form file into memory. The declared content type is
// trusted unless it is missing or generic, in which case it is sniffed.
func readPart(fh *multipart.FileHeader) (core.File, error) {
	f, err := fh.Open()
	if err != nil {
		return core.File{}, fmt.Errorf("open part %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return core.File{}, fmt.Errorf("read part %q: %w", fh.Filename, err)
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = accept.DetectMime(fh.Filename, data[:min(len(data), sniffLen)])
	}

	return core.File{
		Name:     fh.Filename,
		Size:     int64(len(data)),
		MimeType: mimeType,
		Payload:  core.BytesPayload(data),
	}, nil
}

// handleUploadAll uploads every pending file in windows. It returns at once;
// progress arrives over the event stream.
func (s *Server) handleUploadAll(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	pending := 0
	for _, rec := range sess.Manager.Records() {
		if rec.Status == core.StatusPending {
			pending++
		}
	}

	if pending > 0 {
		go sess.Manager.UploadAll(context.WithoutCancel(r.Context()))
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]int{"pending": pending})
}

// handleUploadFile starts one pending or interrupted file.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	sess, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}
	if !sess.Manager.StartUpload(rec.ID) {
		s.respondError(w, r, errNotRestartable, http.StatusConflict)
		return
	}
	writeRecord(w, r, http.StatusAccepted, rec.ID)
}

// handleRetryFile restarts an interrupted file.
func (s *Server) handleRetryFile(w http.ResponseWriter, r *http.Request) {
	sess, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}
	if !sess.Manager.Retry(rec.ID) {
		s.respondError(w, r, errNotRetryable, http.StatusConflict)
		return
	}
	writeRecord(w, r, http.StatusAccepted, rec.ID)
}

// handleCancelFile cancels an in-flight upload. Cancelling a file that is
// not uploading is a no-op.
func (s *Server) handleCancelFile(w http.ResponseWriter, r *http.Request) {
	sess, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sess.Manager.Cancel(ctx, rec.ID)
	writeRecord(w, r, http.StatusOK, rec.ID)
}

// handleRemoveFile drops a file locally without touching the remote copy.
func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	sess, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sess.Remove(ctx, rec.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteFile deletes a file remotely, then locally. A failed remote
// delete keeps the record and answers 502.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	sess, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if _, err := sess.Delete(ctx, rec.ID); err != nil {
		s.respondError(w, r, fmt.Errorf("delete failed: %w", err), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetFile returns one record.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := fileRecord(r)
	if !ok {
		s.respondError(w, r, errFileNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

// handleClear cancels everything in flight and drops all records.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sess.Manager.Clear(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// writeRecord writes the current state of id, which may have moved on since
// the action that preceded it.
func writeRecord(w http.ResponseWriter, r *http.Request, status int, id string) {
	rec, _ := sessionFrom(r.Context()).Manager.Record(id)
	writeJSONStatus(w, status, rec)
}

func nonNil(recs []core.Record) []core.Record {
	if recs == nil {
		return []core.Record{}
	}
	return recs
}
