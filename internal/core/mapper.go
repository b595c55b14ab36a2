package core

// mapper.go assigns observed source headers to declared target columns.
//
// Every (target, header) pair is scored with Similarity against both the
// target's FieldName and DisplayName, keeping the better of the two. Pairs
// are sorted by descending score and assigned greedily so that each header
// and each target is used at most once. Pairs below the threshold are never
// accepted; their targets stay unmapped.

import (
	"sort"
)

// DefaultMappingThreshold is the minimum confidence for an automatic mapping.
const DefaultMappingThreshold = 0.6

// MappingCandidate is one scored (target, header) pair.
type MappingCandidate struct {
	SourceColumn string  `json:"sourceColumn"`
	TargetColumn string  `json:"targetColumn"`
	Score        float64 `json:"score"`

	targetIdx int
	sourceIdx int
}

// Mapper produces column mappings. It holds no mutable state.
type Mapper struct {
	threshold float64
}

// NewMapper creates a mapper with the given acceptance threshold.
// Values outside (0,1] fall back to DefaultMappingThreshold.
func NewMapper(threshold float64) *Mapper {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMappingThreshold
	}
	return &Mapper{threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (m *Mapper) Threshold() float64 { return m.threshold }

// Candidates scores every (target, header) pair, sorted by descending score
// with ties broken by target declaration order, then header order.
func (m *Mapper) Candidates(headers []string, targets []ColumnConfig) []MappingCandidate {
	normHeaders := make([]string, len(headers))
	for i, h := range headers {
		normHeaders[i] = NormalizeHeader(h)
	}

	out := make([]MappingCandidate, 0, len(headers)*len(targets))
	for ti, target := range targets {
		field := NormalizeHeader(target.FieldName)
		display := NormalizeHeader(target.DisplayName)
		for si, h := range normHeaders {
			score := max(similarityNormalized(field, h), similarityNormalized(display, h))
			if score <= 0 {
				continue
			}
			out = append(out, MappingCandidate{
				SourceColumn: headers[si],
				TargetColumn: target.FieldName,
				Score:        score,
				targetIdx:    ti,
				sourceIdx:    si,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].targetIdx != out[j].targetIdx {
			return out[i].targetIdx < out[j].targetIdx
		}
		return out[i].sourceIdx < out[j].sourceIdx
	})
	return out
}

// Map returns one mapping per target column that received an accepted
// match, in target declaration order. Output is deterministic for equal input.
func (m *Mapper) Map(headers []string, targets []ColumnConfig) []ColumnMapping {
	usedSource := make(map[int]bool, len(headers))
	assigned := make(map[int]ColumnMapping, len(targets))

	for _, c := range m.Candidates(headers, targets) {
		if c.Score < m.threshold {
			break
		}
		if usedSource[c.sourceIdx] {
			continue
		}
		if _, done := assigned[c.targetIdx]; done {
			continue
		}
		usedSource[c.sourceIdx] = true
		assigned[c.targetIdx] = ColumnMapping{
			SourceColumn: c.SourceColumn,
			TargetColumn: c.TargetColumn,
			Confidence:   c.Score,
		}
	}

	out := make([]ColumnMapping, 0, len(assigned))
	for ti := range targets {
		if cm, ok := assigned[ti]; ok {
			out = append(out, cm)
		}
	}
	return out
}

// ExactMapping maps a target only when a header equals its FieldName
// byte-for-byte. Used when automatic mapping is disabled.
func ExactMapping(headers []string, targets []ColumnConfig) []ColumnMapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var out []ColumnMapping
	for _, t := range targets {
		if present[t.FieldName] {
			out = append(out, ColumnMapping{
				SourceColumn: t.FieldName,
				TargetColumn: t.FieldName,
				Confidence:   1,
			})
		}
	}
	return out
}

// MappingIndex resolves target field names to source headers.
type MappingIndex map[string]string

// IndexMappings builds a lookup from target FieldName to source header.
func IndexMappings(mappings []ColumnMapping) MappingIndex {
	idx := make(MappingIndex, len(mappings))
	for _, m := range mappings {
		idx[m.TargetColumn] = m.SourceColumn
	}
	return idx
}

// Resolve returns the value of target in row, or an empty value when the
// target is unmapped or the header is absent from the row.
func (idx MappingIndex) Resolve(row Row, target string) Value {
	src, ok := idx[target]
	if !ok {
		return EmptyValue()
	}
	v, ok := row.Get(src)
	if !ok {
		return EmptyValue()
	}
	return v
}

// HeadersOf collects the distinct headers of records in first-seen order.
func HeadersOf(records []Record) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, rec := range records {
		for _, k := range rec.Row.keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	return headers
}
