package core

import (
	"fmt"
	"sort"
	"sync"
)

// CustomValidator is a row-aware business rule. The row holds every target
// column keyed by field name, after mapping. It returns a non-empty
// message on failure. A returned error means the validator itself is
// defective for this input; the evaluator reports it as a generic failure.
type CustomValidator func(value Value, row Row) (string, error)

var (
	validators   = make(map[string]CustomValidator)
	validatorsMu sync.RWMutex
)

// RegisterValidator adds a named validator to the registry.
// Panics if the name is empty or already registered.
func RegisterValidator(name string, fn CustomValidator) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()

	if name == "" || fn == nil {
		panic("core: RegisterValidator requires a name and a function")
	}
	if _, exists := validators[name]; exists {
		panic(fmt.Sprintf("validator already registered: %s", name))
	}
	validators[name] = fn
}

// LookupValidator returns a validator by name.
func LookupValidator(name string) (CustomValidator, bool) {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()

	fn, ok := validators[name]
	return fn, ok
}

// ValidatorNames returns all registered names, sorted.
func ValidatorNames() []string {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()

	names := make([]string, 0, len(validators))
	for name := range validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unregisterValidator removes a validator. Used by tests.
func unregisterValidator(name string) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	delete(validators, name)
}
