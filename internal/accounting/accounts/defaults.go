package accounts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed default_chart.yaml
var defaultChartYAML []byte

// ChartEntry is one account of a seed chart. Parent refers to a code.
type ChartEntry struct {
	Code        string      `yaml:"code"`
	Name        string      `yaml:"name"`
	Type        AccountType `yaml:"type"`
	Category    string      `yaml:"category"`
	SubCategory string      `yaml:"sub_category"`
	Parent      string      `yaml:"parent"`
}

type chartFile struct {
	Accounts []ChartEntry `yaml:"accounts"`
}

// DefaultChart returns the embedded default chart of accounts.
func DefaultChart() ([]ChartEntry, error) {
	return ParseChart(defaultChartYAML)
}

// ParseChart decodes a chart and checks every parent is declared earlier.
func ParseChart(data []byte) ([]ChartEntry, error) {
	var file chartFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	seen := make(map[string]bool, len(file.Accounts))
	for i, entry := range file.Accounts {
		if entry.Code == "" || entry.Name == "" {
			return nil, fmt.Errorf("parse chart: entry %d missing code or name", i)
		}
		if !entry.Type.Valid() {
			return nil, fmt.Errorf("parse chart: %s has invalid type %q", entry.Code, entry.Type)
		}
		if seen[entry.Code] {
			return nil, fmt.Errorf("parse chart: duplicate code %s", entry.Code)
		}
		if entry.Parent != "" && !seen[entry.Parent] {
			return nil, fmt.Errorf("parse chart: %s references parent %s before it is declared", entry.Code, entry.Parent)
		}
		seen[entry.Code] = true
	}
	return file.Accounts, nil
}
