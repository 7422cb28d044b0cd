package core

import (
	"slices"
	"strconv"
)

// IdentityFunc returns the key under which two files are considered the
// same upload. It must be pure.
type IdentityFunc func(File) string

// DefaultIdentity treats files as identical when name, byte size and MIME
// type all match exactly. Content is not hashed.
func DefaultIdentity(f File) string {
	return f.Name + "\x00" + strconv.FormatInt(f.Size, 10) + "\x00" + f.MimeType
}

// Admission is the outcome of classifying a batch of selected files.
type Admission struct {
	// Admitted files become pending records, in input order.
	Admitted []File
	// Rejected files become error records.
	Rejected []Rejection
}

// Admit classifies files against the existing records, in input order.
//
// A file whose identity matches a non-error record, or a file admitted
// earlier in the same batch, is a duplicate. Each identity yields at most
// one FILE_EXISTS record: if one already exists, further duplicates are
// dropped. Other files are admitted while fewer than maxFiles records are
// accepted and rejected with TOO_MANY_FILES after that. maxFiles <= 0 means
// no limit. Rejected keeps input order across both codes.
func Admit(existing []Record, files []File, maxFiles int, identity IdentityFunc) Admission {
	if identity == nil {
		identity = DefaultIdentity
	}

	accepted := make(map[string]struct{}, len(existing)+len(files))
	reported := make(map[string]struct{})
	acceptedCount := 0

	for _, r := range existing {
		key := identity(r.File)
		if r.Status != StatusError {
			accepted[key] = struct{}{}
			acceptedCount++
			continue
		}
		if slices.Contains(r.Errors, string(ErrFileExists)) {
			reported[key] = struct{}{}
		}
	}

	var out Admission
	for _, f := range files {
		key := identity(f)
		if _, dup := accepted[key]; dup {
			if _, seen := reported[key]; !seen {
				reported[key] = struct{}{}
				out.Rejected = append(out.Rejected, Rejection{File: f, Codes: []ErrorCode{ErrFileExists}})
			}
			continue
		}
		if maxFiles > 0 && acceptedCount >= maxFiles {
			out.Rejected = append(out.Rejected, Rejection{File: f, Codes: []ErrorCode{ErrTooManyFiles}})
			continue
		}
		accepted[key] = struct{}{}
		acceptedCount++
		out.Admitted = append(out.Admitted, f)
	}
	return out
}
