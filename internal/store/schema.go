package store

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas
var schemaFiles embed.FS

const schemaBase = "https://housepoker.dev/schemas/"

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		names := []string{"blind_schedule", "payout_curve", "checkpoint"}
		compiled := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			data, err := schemaFiles.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemaErr = errors.Wrapf(err, "read schema %s", name)
				return
			}
			url := schemaBase + name + ".json"
			if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
				schemaErr = errors.Wrapf(err, "add schema %s", name)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				schemaErr = errors.Wrapf(err, "compile schema %s", name)
				return
			}
			compiled[name] = s
		}
		schemas = compiled
	})
	return schemas, schemaErr
}

// validateJSON checks raw JSON against a named schema.
func validateJSON(name string, data []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "%s: invalid JSON", name)
	}
	if err := all[name].Validate(doc); err != nil {
		return errors.Wrapf(err, "%s", name)
	}
	return nil
}

func validateValue(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "%s: encode", name)
	}
	return validateJSON(name, data)
}

// ValidateBlindSchedule checks a blind schedule against its schema and the
// rules the schema cannot express: levels numbered 1..n in order, big blind
// at least the small blind, and blinds that never decrease.
func ValidateBlindSchedule(levels []BlindLevel) error {
	if err := validateValue("blind_schedule", levels); err != nil {
		return err
	}
	for i, l := range levels {
		if l.Level != i+1 {
			return fmt.Errorf("blind_schedule: level %d at position %d", l.Level, i+1)
		}
		if l.BigBlind < l.SmallBlind {
			return fmt.Errorf("blind_schedule: level %d big blind %d below small blind %d", l.Level, l.BigBlind, l.SmallBlind)
		}
		if i > 0 {
			prev := levels[i-1]
			if l.SmallBlind < prev.SmallBlind || l.BigBlind < prev.BigBlind {
				return fmt.Errorf("blind_schedule: level %d blinds decrease", l.Level)
			}
		}
	}
	return nil
}

// ValidatePayouts checks a payout curve: places 1..n in order and a total of
// at most 100 percent.
func ValidatePayouts(payouts []Payout) error {
	if err := validateValue("payout_curve", payouts); err != nil {
		return err
	}
	total := 0.0
	for i, p := range payouts {
		if p.Place != i+1 {
			return fmt.Errorf("payout_curve: place %d at position %d", p.Place, i+1)
		}
		total += p.Percentage
	}
	if total > 100 {
		return fmt.Errorf("payout_curve: percentages sum to %.2f", total)
	}
	return nil
}
