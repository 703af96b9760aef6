// Package kpi derives the website and campaign KPI cards from aggregated
// metric rows. Each row carries a numeric value, a text value or both.
package kpi

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// NotAvailable is shown for a text KPI whose metric row is missing.
const NotAvailable = "N/A"

// Metric is one aggregated row, e.g. total_sessions or top_campaign_source.
type Metric struct {
	Name  string   `yaml:"name" json:"name"`
	Value *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Text  *string  `yaml:"text,omitempty" json:"text,omitempty"`
}

// Metrics indexes rows by name.
type Metrics map[string]Metric

// Source yields the current metric rows.
type Source interface {
	Metrics(ctx context.Context) (Metrics, error)
}

// Static serves a fixed set of rows.
type Static Metrics

// Metrics returns a copy of the rows.
func (s Static) Metrics(context.Context) (Metrics, error) {
	return maps.Clone(Metrics(s)), nil
}

// FromRows indexes rows by name. A later row replaces an earlier one.
func FromRows(rows []Metric) Metrics {
	m := make(Metrics, len(rows))
	for _, row := range rows {
		if row.Name != "" {
			m[row.Name] = row
		}
	}
	return m
}

// Rows lists the metrics, for persisting them.
func (m Metrics) Rows() []Metric {
	rows := make([]Metric, 0, len(m))
	for _, row := range m {
		rows = append(rows, row)
	}
	return rows
}

// value returns the numeric value of name, or 0 when the row or its value is absent.
func (m Metrics) value(name string) float64 {
	if row, ok := m[name]; ok && row.Value != nil {
		return *row.Value
	}
	return 0
}

func (m Metrics) has(name string) bool {
	row, ok := m[name]
	return ok && row.Value != nil
}

func (m Metrics) text(name string) string {
	if row, ok := m[name]; ok && row.Text != nil && *row.Text != "" {
		return *row.Text
	}
	return NotAvailable
}

//go:embed sample_metrics.yaml
var sampleYAML []byte

var sample = sync.OnceValues(func() (Metrics, error) {
	return ParseMetrics(sampleYAML)
})

// Sample returns the embedded demo rows used by `scalex mock-api`.
func Sample() (Metrics, error) {
	m, err := sample()
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}

// ParseMetrics reads a YAML list of rows.
func ParseMetrics(data []byte) (Metrics, error) {
	var rows []Metric
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	for i, row := range rows {
		if row.Name == "" {
			return nil, fmt.Errorf("parse metrics: row %d has no name", i)
		}
	}
	return FromRows(rows), nil
}

// LoadMetrics reads rows from a YAML file, or the embedded sample when path is empty.
func LoadMetrics(path string) (Metrics, error) {
	if path == "" {
		return Sample()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	return ParseMetrics(data)
}
