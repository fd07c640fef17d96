package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

//go:embed categories.yaml
var defaultCategories []byte

// CategoryFile is the YAML layout of the category table.
type CategoryFile struct {
	Categories []CategoryRow `yaml:"categories"`
}

// CategoryRow is one category definition.
type CategoryRow struct {
	Module          string `yaml:"module"`
	CategoryID      int    `yaml:"category_id"`
	Name            string `yaml:"name"`
	SlotLimit       int    `yaml:"slot_limit"`
	CompletionLimit int    `yaml:"completion_limit"`
	RenewalPeriod   int    `yaml:"renewal_period"`
	EvalFunc        string `yaml:"eval_func"`
}

// LoadCategories builds the category registry from path, or from the
// embedded default table when path is empty.
func LoadCategories(path string, scoring *progression.ScoringRegistry) (*progression.CategoryRegistry, error) {
	raw := defaultCategories
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read categories file: %w", err)
		}
		raw = b
	}
	return ParseCategories(raw, scoring)
}

// ParseCategories decodes a YAML category table and validates it. Unknown
// fields, unknown modules and every registry rule violation fail.
func ParseCategories(raw []byte, scoring *progression.ScoringRegistry) (*progression.CategoryRegistry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file CategoryFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	defs := make([]progression.CategoryConfig, 0, len(file.Categories))
	for i, row := range file.Categories {
		module, err := shared.ParseModule(row.Module)
		if err != nil {
			return nil, fmt.Errorf("categories[%d]: %w", i, err)
		}
		defs = append(defs, progression.CategoryConfig{
			Module:          module,
			CategoryID:      row.CategoryID,
			Name:            row.Name,
			SlotLimit:       row.SlotLimit,
			CompletionLimit: row.CompletionLimit,
			RenewalPeriod:   row.RenewalPeriod,
			EvalFunc:        row.EvalFunc,
		})
	}

	registry, err := progression.NewCategoryRegistry(defs, scoring)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return registry, nil
}
