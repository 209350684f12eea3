// Package strategies reads and writes strategy documents and holds the
// named preset strategies.
package strategies

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strategy-backtester/services/engine"
)

// document is the on-disk shape. Dates may be plain YYYY-MM-DD.
type document struct {
	Name      string                  `json:"name"`
	Actions   []engine.StrategyAction `json:"actions"`
	Universe  engine.Universe         `json:"universe"`
	TimeRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"timeRange"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006/01/02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Decode parses a JSON strategy document. Symbols are upper-cased and
// de-duplicated; action fields are normalized by engine.StrategyAction.
func Decode(data []byte) (engine.Strategy, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return engine.Strategy{}, fmt.Errorf("decode strategy: %w", err)
	}
	start, err := parseDate(doc.TimeRange.Start)
	if err != nil {
		return engine.Strategy{}, fmt.Errorf("timeRange.start: %w", err)
	}
	end, err := parseDate(doc.TimeRange.End)
	if err != nil {
		return engine.Strategy{}, fmt.Errorf("timeRange.end: %w", err)
	}
	return engine.Strategy{
		Name:      doc.Name,
		Actions:   doc.Actions,
		Universe:  engine.Universe{Symbols: NormalizeSymbols(doc.Universe.Symbols)},
		TimeRange: engine.TimeRange{Start: start, End: end},
	}, nil
}

// DecodeYAML accepts the same document written as YAML.
func DecodeYAML(data []byte) (engine.Strategy, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return engine.Strategy{}, fmt.Errorf("decode strategy yaml: %w", err)
	}
	asJSON, err := json.Marshal(tree)
	if err != nil {
		return engine.Strategy{}, fmt.Errorf("decode strategy yaml: %w", err)
	}
	return Decode(asJSON)
}

// Load reads a strategy file, choosing the decoder by extension.
func Load(path string) (engine.Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Strategy{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return Decode(data)
	}
}

// Encode writes s as an indented JSON document with YYYY-MM-DD dates.
func Encode(s engine.Strategy) ([]byte, error) {
	var doc document
	doc.Name = s.Name
	doc.Actions = s.Actions
	doc.Universe = s.Universe
	if !s.TimeRange.Start.IsZero() {
		doc.TimeRange.Start = s.TimeRange.Start.Format("2006-01-02")
	}
	if !s.TimeRange.End.IsZero() {
		doc.TimeRange.End = s.TimeRange.End.Format("2006-01-02")
	}
	return json.MarshalIndent(doc, "", "  ")
}

func NormalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
