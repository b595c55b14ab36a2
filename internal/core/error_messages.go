package core

// # Error codes
//
// Support staff quote these codes back from the UI. Only transport and
// lifecycle failures are mapped; row-level validation failures are reported
// inside an UploadSummary instead.
//
//	FILE001  file exceeds the size limit
//	FILE002  file type not accepted
//	FILE003  file is not valid CSV
//	FILE004  no file selected
//	FILE005  file has no data
//	UPL001   upload discarded
//	UPL002   limiter busy
//	UPL003   upload not found or expired
//	UPL004   request cancelled
//	UPL005   request timed out
//	UPL006   upload already finished
//	UPL007   multiple files not allowed
//	UPL008   upload already running
//	CFG001   unknown upload config
//	CFG002   invalid upload config
//	CFG003   no uploader configured
//	CFG004   duplicate config key
//	DB001    upload already recorded
//	DB004    database unreachable
//	RATE001  rate limited
//	ERR000   anything else; check the logs for the technical error

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFileTooLarge = UserMessage{"File exceeds the maximum size limit", "Split the file into smaller chunks", "FILE001"}
	msgFileType     = UserMessage{"This file type is not accepted", "Upload one of the accepted file types or download the template", "FILE002"}
	msgBadCSV       = UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE003"}
	msgNoFile       = UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}
	msgEmptyFile    = UserMessage{"The uploaded file is empty", "Please upload a file with data rows", "FILE005"}

	msgDiscarded      = UserMessage{"Upload was discarded", "Start a new upload when ready", "UPL001"}
	msgBusy           = UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL002"}
	msgNotFound       = UserMessage{"Upload session not found", "The upload may have expired. Please start a new upload", "UPL003"}
	msgCancelled      = UserMessage{"Request was cancelled", "Please try again", "UPL004"}
	msgTimeout        = UserMessage{"Request timed out", "Try uploading a smaller file or check your connection", "UPL005"}
	msgFinished       = UserMessage{"This upload has already finished", "Retry the file to start a new upload", "UPL006"}
	msgSingleFile     = UserMessage{"Only one file can be uploaded at a time", "Upload the files one by one", "UPL007"}
	msgAlreadyRunning = UserMessage{"This upload is already being processed", "Wait for it to finish", "UPL008"}

	msgUnknownConfig   = UserMessage{"Upload configuration not found", "Verify the upload type is correct", "CFG001"}
	msgInvalidConfig   = UserMessage{"Upload configuration is invalid", "Contact an administrator to fix the column configuration", "CFG002"}
	msgNoUploader      = UserMessage{"Upload source is not configured", "Contact an administrator", "CFG003"}
	msgDuplicateConfig = UserMessage{"An upload configuration with this key already exists", "Rename the key in the schema file", "CFG004"}

	msgRecorded    = UserMessage{"This upload was already recorded", "Refresh the upload history", "DB001"}
	msgDBDown      = UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}
	msgRateLimited = UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}

	defaultMessage = UserMessage{"An unexpected error occurred", "Please try again or contact support", "ERR000"}
)

// sentinelMessages is checked with errors.Is, in order.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrFileTooLarge, msgFileTooLarge},
	{ErrFileType, msgFileType},
	{ErrDiscarded, msgDiscarded},
	{ErrTooManyUploads, msgBusy},
	{ErrUploadNotFound, msgNotFound},
	{ErrTerminalState, msgFinished},
	{ErrMultipleFiles, msgSingleFile},
	{ErrAlreadyStarted, msgAlreadyRunning},
	{ErrUnknownConfig, msgUnknownConfig},
	{ErrNoUploader, msgNoUploader},
	{ErrDuplicateConfig, msgDuplicateConfig},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// textMessages covers errors from packages core cannot import, matched
// case-insensitively against the error text. First match wins.
var textMessages = []struct {
	pattern string
	msg     UserMessage
}{
	{"parse csv", msgBadCSV},
	{"no file provided", msgNoFile},
	{"empty file", msgEmptyFile},
	{"no data rows", msgEmptyFile},
	{"invalid upload config", msgInvalidConfig},
	{"duplicate key", msgRecorded},
	{"connection refused", msgDBDown},
	{"rate limit", msgRateLimited},
	{"file too large", msgFileTooLarge},
}

// MapError converts a technical error to a user-friendly message. Wrapped
// sentinels are recognised first, then known error text. Anything else maps
// to the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, t := range textMessages {
		if strings.Contains(text, t.pattern) {
			return t.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
