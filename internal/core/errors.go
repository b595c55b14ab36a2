package core

import "errors"

// Transport-level and lifecycle errors. Field validation failures are never
// Go errors; they are reported as UploadError values inside a summary.
var (
	ErrFileTooLarge   = errors.New("file too large")
	ErrFileType       = errors.New("file type not accepted")
	ErrNoUploader     = errors.New("no upload function configured")
	ErrMultipleFiles  = errors.New("multiple files not allowed")
	ErrDiscarded      = errors.New("upload discarded")
	ErrTerminalState  = errors.New("upload already finished")
	ErrUnknownConfig  = errors.New("unknown upload config")
	ErrUploadNotFound = errors.New("upload not found")
)
