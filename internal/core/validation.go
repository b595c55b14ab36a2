package core

// validation.go applies the configured rules to every row of an upload.
//
// Validation resolves each target column through the column mapping, runs
// Evaluate, and records one UploadError per failing column. Custom validators
// see the resolved row, keyed by target field name. Rows are never
// dropped or reordered: the result partitions the input into valid and
// invalid rows, and errors are ordered by row then by column.

// Validator validates records against target columns through a fixed mapping.
type Validator struct {
	targets []ColumnConfig
	index   MappingIndex
}

// NewValidator creates a validator for the given targets and mapping.
func NewValidator(targets []ColumnConfig, mapping []ColumnMapping) *Validator {
	return &Validator{
		targets: targets,
		index:   IndexMappings(mapping),
	}
}

// ValidateRow returns the errors of a single record, in target column order.
func (v *Validator) ValidateRow(rec Record) []UploadError {
	resolved := v.resolve(rec.Row)
	var errs []UploadError
	for _, col := range v.targets {
		value, _ := resolved.Get(col.FieldName)
		if msg := Evaluate(col.Rules, value, resolved); msg != "" {
			errs = append(errs, UploadError{
				Row:    rec.Index,
				Line:   rec.Line,
				Column: col.FieldName,
				Error:  msg,
				Value:  value,
			})
		}
	}
	return errs
}

// resolve builds the row as seen through the mapping, one entry per target.
func (v *Validator) resolve(row Row) Row {
	out := NewRow(len(v.targets))
	for _, col := range v.targets {
		out.Set(col.FieldName, v.index.Resolve(row, col.FieldName))
	}
	return out
}

// Validate runs ValidateRow over every record in input order.
// A RowFunc, if given, is called after each row with the number processed.
func (v *Validator) Validate(records []Record, onRow ...RowFunc) ValidationResult {
	result := ValidationResult{
		ValidRows:   make([]Record, 0, len(records)),
		InvalidRows: make([]Record, 0),
		Errors:      make([]UploadError, 0),
	}

	for i, rec := range records {
		if errs := v.ValidateRow(rec); len(errs) > 0 {
			result.InvalidRows = append(result.InvalidRows, rec)
			result.Errors = append(result.Errors, errs...)
		} else {
			result.ValidRows = append(result.ValidRows, rec)
		}
		for _, fn := range onRow {
			fn(i + 1)
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// RowFunc observes validation progress.
type RowFunc func(processed int)

// ValidateRow validates one record. Unmapped targets resolve to empty values.
func ValidateRow(rec Record, targets []ColumnConfig, mapping []ColumnMapping) []UploadError {
	return NewValidator(targets, mapping).ValidateRow(rec)
}

// Validate maps headers with the default threshold when mapping is nil,
// then validates every record.
func Validate(records []Record, targets []ColumnConfig, mapping []ColumnMapping) ValidationResult {
	if mapping == nil {
		mapping = NewMapper(DefaultMappingThreshold).Map(HeadersOf(records), targets)
	}
	return NewValidator(targets, mapping).Validate(records)
}
