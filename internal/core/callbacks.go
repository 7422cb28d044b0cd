package core

// Callbacks are the events a Manager emits to its host. Every field is
// optional. Callbacks run on the goroutine that caused the transition, never
// while the manager holds a lock, so they may call back into the manager.
type Callbacks struct {
	// OnFilesAdded fires after admission, before any upload starts, with the
	// admitted records.
	OnFilesAdded func(records []Record)

	// OnFileProgress fires whenever stored progress of an uploading record
	// increases.
	OnFileProgress func(fileID string, percent float64)

	OnFileUploadComplete func(fileID string, result Result)

	// OnFileUploadError fires for both retryable and fatal transport errors.
	OnFileUploadError func(fileID string, message string)

	OnFileRemoved        func(fileID string)
	OnFileDeleted        func(fileID string)
	OnFileUploadCanceled func(fileID string)
	OnFileUploadRetried  func(fileID string)

	// OnAllFileUploadsComplete fires once per transition into "records exist
	// and none is uploading".
	OnAllFileUploadsComplete func()
}

func (c Callbacks) filesAdded(recs []Record) {
	if c.OnFilesAdded != nil && len(recs) > 0 {
		c.OnFilesAdded(recs)
	}
}

func (c Callbacks) progress(id string, p float64) {
	if c.OnFileProgress != nil {
		c.OnFileProgress(id, p)
	}
}

func (c Callbacks) completed(id string, res Result) {
	if c.OnFileUploadComplete != nil {
		c.OnFileUploadComplete(id, res)
	}
}

func (c Callbacks) failed(id, msg string) {
	if c.OnFileUploadError != nil {
		c.OnFileUploadError(id, msg)
	}
}

func (c Callbacks) removed(id string) {
	if c.OnFileRemoved != nil {
		c.OnFileRemoved(id)
	}
}

func (c Callbacks) deleted(id string) {
	if c.OnFileDeleted != nil {
		c.OnFileDeleted(id)
	}
}

func (c Callbacks) canceled(id string) {
	if c.OnFileUploadCanceled != nil {
		c.OnFileUploadCanceled(id)
	}
}

func (c Callbacks) retried(id string) {
	if c.OnFileUploadRetried != nil {
		c.OnFileUploadRetried(id)
	}
}

func (c Callbacks) allComplete(fire bool) {
	if fire && c.OnAllFileUploadsComplete != nil {
		c.OnAllFileUploadsComplete()
	}
}
