package dispatch

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/seuros/scalex/internal/chart"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Mapping kinds.
const (
	KindDatasets = "datasets"
	KindKPI      = "kpi"
	KindFields   = "fields"
)

// FieldRef names a value found at a dot-separated path in the raw payload.
type FieldRef struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Mapping is the declarative description of how one chart's raw API payload
// becomes a chart.Payload.
type Mapping struct {
	Kind     string `yaml:"kind"`
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
	// Shared charts are always fetched from the global endpoint, even on pages
	// that declare their own.
	Shared bool `yaml:"shared"`

	// datasets
	Labels    string     `yaml:"labels"`
	Datasets  string     `yaml:"datasets"`
	NameKey   string     `yaml:"name_key"`
	ValuesKey string     `yaml:"values_key"`
	Series    []FieldRef `yaml:"series"`

	// fields
	Fields []FieldRef `yaml:"fields"`

	// kpi
	Value     string `yaml:"value"`
	Previous  string `yaml:"previous"`
	Delta     string `yaml:"delta"`
	Sparkline string `yaml:"sparkline"`

	Hints      map[string]string `yaml:"hints"`
	HintFields map[string]string `yaml:"hint_fields"`
}

// Meta returns the display titles declared for the chart.
func (m Mapping) Meta() chart.DisplayMeta {
	return chart.DisplayMeta{Title: m.Title, Subtitle: m.Subtitle}
}

// Page lists the charts shown on one dashboard screen, in fetch order.
type Page struct {
	Title    string     `yaml:"title"`
	Endpoint string     `yaml:"endpoint"`
	Batch    bool       `yaml:"batch"`
	Charts   []chart.ID `yaml:"charts"`
}

// Catalog is the parsed catalog document.
type Catalog struct {
	Pages  map[chart.PageKey]Page `yaml:"pages"`
	Charts map[chart.ID]Mapping   `yaml:"charts"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Pages) == 0 {
		return nil, fmt.Errorf("catalog declares no pages")
	}

	for id, m := range c.Charts {
		switch m.Kind {
		case KindDatasets:
			if m.NameKey == "" {
				m.NameKey = "label"
			}
			if m.ValuesKey == "" {
				m.ValuesKey = "data"
			}
			if m.Labels == "" {
				m.Labels = "labels"
			}
			if m.Datasets == "" {
				m.Datasets = "datasets"
			}
		case KindKPI:
			if m.Sparkline == "" {
				return nil, fmt.Errorf("chart %s: kpi mapping needs a sparkline path", id)
			}
		case KindFields:
			if len(m.Fields) == 0 {
				return nil, fmt.Errorf("chart %s: fields mapping needs at least one field", id)
			}
		default:
			return nil, fmt.Errorf("chart %s: unknown mapping kind %q", id, m.Kind)
		}
		c.Charts[id] = m
	}

	for key, page := range c.Pages {
		seen := make(map[chart.ID]struct{}, len(page.Charts))
		for _, id := range page.Charts {
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("page %s lists chart %s twice", key, id)
			}
			seen[id] = struct{}{}
		}
	}

	return &c, nil
}

// PageKeys lists the catalog pages in lexical order.
func (c *Catalog) PageKeys() []chart.PageKey {
	keys := make([]chart.PageKey, 0, len(c.Pages))
	for key := range c.Pages {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
