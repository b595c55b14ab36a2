// Package core provides the bulk-upload ingestion pipeline.
//
// The package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
// An upload moves through four stages:
//
//   - Column mapping: source headers are matched to configured target
//     columns by normalized edit-distance similarity ([Mapper]).
//   - Validation: every mapped cell is checked against its [ValidationRule]
//     ([Evaluate], [Validator]).
//   - Duplicate detection: valid rows are keyed by their mapped values and
//     repeats are dropped ([DetectDuplicates]).
//   - Orchestration: an [Orchestrator] drives each file through
//     pending, uploading, processing and a terminal state.
//
// # Upload Configs
//
// Upload configs are registered at init time using [Register], or loaded
// from YAML by the schemas package:
//
//	core.Register(core.UploadConfig{
//	    Key:           "contacts",
//	    EnableMapping: true,
//	    Columns: []core.ColumnConfig{
//	        {FieldName: "email", DisplayName: "Email",
//	            Rules: &core.ValidationRule{Type: core.TypeEmail, Required: true}},
//	    },
//	})
//
// # Custom Validators
//
// Business rules that need code are registered by name with
// [RegisterValidator] and referenced from a rule's customValidator field.
// A validator that errors or panics reports "Custom validation failed" for
// that cell only.
//
// # Row Numbering
//
// Every [Record] carries its 1-based position in the raw input. Errors and
// duplicate groups refer to that index, which never changes when rows are
// partitioned or deduplicated.
//
// # Error Handling
//
// Row failures are data, reported as [UploadError] values in the summary.
// Transport and lifecycle failures are Go errors, mapped to user-friendly
// messages with [MapError]:
//
//   - FILE001-FILE005: File errors (size, type, format)
//   - UPL001-UPL008: Upload errors (discarded, busy, cancelled)
//   - CFG001-CFG004: Configuration errors
//   - DB001, DB004: History storage errors
package core
