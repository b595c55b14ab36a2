package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DuplicateGroup lists the rows that share one identity key.
// Rows[0] is the occurrence that was kept.
type DuplicateGroup struct {
	Key  string `json:"key"`
	Rows []int  `json:"rows"`
}

// DuplicateResult is the outcome of DetectDuplicates.
type DuplicateResult struct {
	UniqueRows     []Record         `json:"uniqueRows"`
	DuplicateCount int              `json:"duplicateCount"`
	Groups         []DuplicateGroup `json:"groups,omitempty"`
}

// DetectDuplicates keeps the first record of every identity key and counts
// the rest. Only rows that already passed validation should be passed in.
// The key is built from keyColumns, or from every target when keyColumns is empty.
func DetectDuplicates(valid []Record, keyColumns []string, targets []ColumnConfig, mapping []ColumnMapping) DuplicateResult {
	if len(keyColumns) == 0 {
		keyColumns = make([]string, len(targets))
		for i, t := range targets {
			keyColumns[i] = t.FieldName
		}
	}
	index := IndexMappings(mapping)

	result := DuplicateResult{UniqueRows: make([]Record, 0, len(valid))}
	groups := make(map[string]int)

	for _, rec := range valid {
		key := RowKey(rec.Row, keyColumns, index)
		if gi, seen := groups[key]; seen {
			result.DuplicateCount++
			result.Groups[gi].Rows = append(result.Groups[gi].Rows, rec.Index)
			continue
		}
		groups[key] = len(result.Groups)
		result.Groups = append(result.Groups, DuplicateGroup{Key: key, Rows: []int{rec.Index}})
		result.UniqueRows = append(result.UniqueRows, rec)
	}

	// Only groups with repeats are interesting to callers.
	kept := result.Groups[:0]
	for _, g := range result.Groups {
		if len(g.Rows) > 1 {
			kept = append(kept, g)
		}
	}
	result.Groups = kept

	return result
}

// RowKey hashes the mapped values of columns. Each field is length-prefixed
// so no choice of cell content can make two different rows collide.
func RowKey(row Row, columns []string, index MappingIndex) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, col := range columns {
		text := index.Resolve(row, col).Text()
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(text)))
		h.Write(lenBuf[:])
		h.Write([]byte(text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
