// Package core provides the bulk-upload ingestion pipeline.
// This package has no UI or transport dependencies and can be used by any frontend.
package core

import (
	"time"
)

// FieldType is the expected shape of a column value.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeEmail   FieldType = "email"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// Valid reports whether t is a known field type. The zero value is valid
// and means "no type check".
func (t FieldType) Valid() bool {
	switch t {
	case "", TypeString, TypeNumber, TypeEmail, TypeDate, TypeBoolean:
		return true
	}
	return false
}

// ValidationRule declares the constraints applied to one column.
// All present constraints apply conjunctively in a fixed order (see Evaluate).
type ValidationRule struct {
	Type      FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	Required  bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Regex     string    `json:"regex,omitempty" yaml:"regex,omitempty"`
	MinLength *int      `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Min       *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64  `json:"max,omitempty" yaml:"max,omitempty"`

	// Custom names a validator registered with RegisterValidator.
	Custom string `json:"customValidator,omitempty" yaml:"customValidator,omitempty"`
}

// ColumnConfig declares one target column. Slice order is canonical column order.
type ColumnConfig struct {
	FieldName   string          `json:"fieldName" yaml:"fieldName"`
	DisplayName string          `json:"displayName" yaml:"displayName"`
	Rules       *ValidationRule `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
}

// ColumnMapping links an observed source header to a target column.
type ColumnMapping struct {
	SourceColumn string  `json:"sourceColumn"`
	TargetColumn string  `json:"targetColumn"`
	Confidence   float64 `json:"confidence"`
}

// UploadError is a single field failure. Row is the 1-based index into the
// raw input and does not change when rows are partitioned or deduplicated.
// Line is the physical line in the source file when known.
type UploadError struct {
	Row    int    `json:"row"`
	Line   int    `json:"line,omitempty"`
	Column string `json:"column"`
	Error  string `json:"error"`
	Value  Value  `json:"value"`
}

// ValidationResult partitions the input by row: a row with any field error
// is wholly invalid.
type ValidationResult struct {
	IsValid     bool          `json:"isValid"`
	Errors      []UploadError `json:"errors"`
	ValidRows   []Record      `json:"validRows"`
	InvalidRows []Record      `json:"invalidRows"`
}

// UploadSummary is the final outcome of one file.
//
// SuccessCount + DuplicateCount + (rows with at least one error) == TotalRows.
type UploadSummary struct {
	TotalRows      int           `json:"totalRows"`
	SuccessCount   int           `json:"successCount"`
	ErrorCount     int           `json:"errorCount"`
	DuplicateCount int           `json:"duplicateCount"`
	Errors         []UploadError `json:"errors"`
}

// FileStatus is the lifecycle state of a BulkUploadFile.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusUploading  FileStatus = "uploading"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusError      FileStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s FileStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// BulkUploadFile is one user-selected file. It is owned by the Orchestrator
// from creation until it reaches a terminal state.
type BulkUploadFile struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Size       int64         `json:"size"`
	Type       string        `json:"type"`
	UploadDate time.Time     `json:"uploadDate"`
	Status     FileStatus    `json:"status"`
	Progress   int           `json:"progress"`
	Data       []Record      `json:"data,omitempty"`
	Errors     []UploadError `json:"errors,omitempty"`

	// Message carries the transport-level failure when Status is StatusError.
	Message string `json:"message,omitempty"`

	// Source is the opaque file handle handed to the UploadFunc.
	Source any `json:"-"`
}

// UploadProgress is a snapshot emitted on every status or progress change.
type UploadProgress struct {
	UploadID string     `json:"uploadId"`
	FileName string     `json:"fileName"`
	Status   FileStatus `json:"status"`
	Progress int        `json:"progress"`
	Rows     int        `json:"rows"`
	Message  string     `json:"message,omitempty"`
}
