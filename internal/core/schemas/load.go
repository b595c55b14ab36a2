// Package schemas provides the built-in upload configs and custom
// validators, and loads additional configs from YAML files.
// Import this package to ensure they are registered.
package schemas

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// Decode reads every YAML document from r as one UploadConfig.
// Unknown fields are rejected.
func Decode(r io.Reader) ([]core.UploadConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []core.UploadConfig
	for {
		var cfg core.UploadConfig
		err := dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
}

// LoadFile reads the configs in one YAML file.
func LoadFile(path string) ([]core.UploadConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfgs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfgs, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, in file name order.
// It does not recurse.
func LoadDir(dir string) ([]core.UploadConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []core.UploadConfig
	for _, name := range names {
		cfgs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, cfgs...)
	}
	return out, nil
}

// RegisterDir loads dir and adds every config to the core registry.
// It returns how many were added and every problem found.
func RegisterDir(dir string) (int, error) {
	cfgs, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}

	var errs []error
	added := 0
	for _, cfg := range cfgs {
		if err := core.Add(cfg); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}
