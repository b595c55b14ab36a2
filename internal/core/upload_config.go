package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// UploadConfig is the configuration surface of one bulk-upload entry point.
// It is supplied once and treated as read-only by every upload using it.
type UploadConfig struct {
	Key                string         `json:"key" yaml:"key"`
	Label              string         `json:"label" yaml:"label"`
	AcceptedFileTypes  []string       `json:"acceptedFileTypes" yaml:"acceptedFileTypes"`
	MaxFileSizeMB      int            `json:"maxFileSizeMB" yaml:"maxFileSizeMB"`
	TemplateURL        string         `json:"templateUrl,omitempty" yaml:"templateUrl,omitempty"`
	Columns            []ColumnConfig `json:"columnsConfig" yaml:"columnsConfig"`
	AllowMultipleFiles bool           `json:"allowMultipleFiles" yaml:"allowMultipleFiles"`
	EnableMapping      bool           `json:"enableMapping" yaml:"enableMapping"`

	// MappingThreshold overrides DefaultMappingThreshold when set.
	MappingThreshold float64 `json:"mappingThreshold,omitempty" yaml:"mappingThreshold,omitempty"`

	// KeyColumns select the fields forming the duplicate key. Empty means all columns.
	KeyColumns []string `json:"keyColumns,omitempty" yaml:"keyColumns,omitempty"`
}

// MaxFileSizeBytes returns the size limit in bytes, or 0 when unlimited.
func (c UploadConfig) MaxFileSizeBytes() int64 {
	if c.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// FieldNames returns the target field names in declaration order.
func (c UploadConfig) FieldNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.FieldName
	}
	return names
}

// DisplayNames returns column labels, falling back to the field name.
func (c UploadConfig) DisplayNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.DisplayName
		if names[i] == "" {
			names[i] = col.FieldName
		}
	}
	return names
}

// Accepts reports whether a file name or MIME type is allowed.
// Entries starting with "." match extensions; others match the MIME type.
// An empty list accepts everything.
func (c UploadConfig) Accepts(name, mimeType string) bool {
	if len(c.AcceptedFileTypes) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, accepted := range c.AcceptedFileTypes {
		accepted = strings.ToLower(strings.TrimSpace(accepted))
		if strings.HasPrefix(accepted, ".") {
			if ext == accepted {
				return true
			}
			continue
		}
		if mimeType != "" && mimeType == accepted {
			return true
		}
	}
	return false
}

// Validate checks the configuration and returns every problem found.
func (c UploadConfig) Validate() error {
	var errs []error

	if len(c.Columns) == 0 {
		errs = append(errs, errors.New("columnsConfig must declare at least one column"))
	}
	if c.MaxFileSizeMB < 0 {
		errs = append(errs, errors.New("maxFileSizeMB must be non-negative"))
	}
	if c.MappingThreshold < 0 || c.MappingThreshold > 1 {
		errs = append(errs, fmt.Errorf("mappingThreshold %v must be within [0,1]", c.MappingThreshold))
	}

	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		if col.FieldName == "" {
			errs = append(errs, fmt.Errorf("column %d: fieldName is required", i))
			continue
		}
		if seen[col.FieldName] {
			errs = append(errs, fmt.Errorf("column %q: duplicate fieldName", col.FieldName))
		}
		seen[col.FieldName] = true

		if err := validateRule(col.Rules); err != nil {
			errs = append(errs, fmt.Errorf("column %q: %w", col.FieldName, err))
		}
	}

	for _, key := range c.KeyColumns {
		if !seen[key] {
			errs = append(errs, fmt.Errorf("keyColumns: %q is not a configured fieldName", key))
		}
	}

	return errors.Join(errs...)
}

func validateRule(r *ValidationRule) error {
	if r == nil {
		return nil
	}
	var errs []error
	if !r.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown type %q", r.Type))
	}
	if r.Regex != "" {
		if _, err := compileAnchored(r.Regex); err != nil {
			errs = append(errs, fmt.Errorf("invalid regex: %w", err))
		}
	}
	if r.MinLength != nil && *r.MinLength < 0 {
		errs = append(errs, errors.New("minLength must be non-negative"))
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		errs = append(errs, errors.New("minLength exceeds maxLength"))
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		errs = append(errs, errors.New("min exceeds max"))
	}
	if r.Custom != "" {
		if _, ok := LookupValidator(r.Custom); !ok {
			errs = append(errs, fmt.Errorf("customValidator %q is not registered", r.Custom))
		}
	}
	return errors.Join(errs...)
}
