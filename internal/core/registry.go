package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateConfig is returned by Add when the key is already registered.
var ErrDuplicateConfig = errors.New("upload config already registered")

var (
	registry   = make(map[string]UploadConfig)
	registryMu sync.RWMutex
)

// Register adds an upload config to the registry.
// Panics if the config is invalid or the key is already registered.
func Register(cfg UploadConfig) {
	if err := Add(cfg); err != nil {
		panic(err)
	}
}

// Add validates cfg and adds it to the registry.
func Add(cfg UploadConfig) error {
	if cfg.Key == "" {
		return errors.New("invalid upload config: key is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid upload config %q: %w", cfg.Key, err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[cfg.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConfig, cfg.Key)
	}
	registry[cfg.Key] = cfg
	return nil
}

// Get returns an upload config by key.
// Returns false if not found.
func Get(key string) (UploadConfig, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	cfg, ok := registry[key]
	return cfg, ok
}

// Lookup is Get with an ErrUnknownConfig error.
func Lookup(key string) (UploadConfig, error) {
	cfg, ok := Get(key)
	if !ok {
		return UploadConfig{}, fmt.Errorf("%w: %s", ErrUnknownConfig, key)
	}
	return cfg, nil
}

// All returns all registered configs sorted by key.
func All() []UploadConfig {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]UploadConfig, 0, len(registry))
	for _, cfg := range registry {
		result = append(result, cfg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// ConfigCount returns the number of registered configs.
func ConfigCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered configs.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]UploadConfig)
}
