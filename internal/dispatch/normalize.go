package dispatch

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/seuros/scalex/internal/chart"
)

// ErrMalformedPayload is returned when the raw payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed chart payload")

// Normalize turns a raw API payload into a chart.Payload. It never panics on
// absent or wrong-typed fields: they become empty series or nil values. The
// result depends on raw alone.
func (m Mapping) Normalize(raw []byte) (chart.Payload, error) {
	if !jsoniter.Valid(raw) {
		return chart.Payload{}, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	root := jsoniter.Get(raw)
	if root.ValueType() != jsoniter.ObjectValue {
		return chart.Payload{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedPayload, typeName(root.ValueType()))
	}

	var p chart.Payload
	switch m.Kind {
	case KindDatasets:
		p = m.normalizeDatasets(root)
	case KindKPI:
		p = m.normalizeKPI(root)
	case KindFields:
		p = m.normalizeFields(root)
	default:
		return chart.Payload{}, fmt.Errorf("unknown mapping kind %q", m.Kind)
	}

	hints := m.hints(root)
	for i := range p.Series {
		p.Series[i].StyleHints = mergeHints(hints, p.Series[i].StyleHints)
	}
	return p.Normalize(), nil
}

func (m Mapping) normalizeDatasets(root jsoniter.Any) chart.Payload {
	p := chart.Payload{
		Labels: stringArray(lookup(root, m.Labels)),
		Series: []chart.Series{},
	}

	datasets := lookup(root, m.Datasets)
	if datasets.ValueType() == jsoniter.ArrayValue {
		for i := 0; i < datasets.Size(); i++ {
			ds := datasets.Get(i)
			if ds.ValueType() != jsoniter.ObjectValue {
				continue
			}
			name := scalarString(ds.Get(m.NameKey))
			if name == "" {
				name = fmt.Sprintf("Series %d", i+1)
			}
			p.Series = append(p.Series, chart.Series{
				Name:   name,
				Values: numberArray(ds.Get(m.ValuesKey)),
			})
		}
	}

	for _, extra := range m.Series {
		p.Series = append(p.Series, chart.Series{
			Name:       extra.Name,
			Values:     numberArray(lookup(root, extra.Path)),
			StyleHints: map[string]string{"role": "auxiliary"},
		})
	}
	return p
}

func (m Mapping) normalizeKPI(root jsoniter.Any) chart.Payload {
	values := numberArray(lookup(root, m.Sparkline))
	labels := make([]string, len(values))
	for i := range values {
		labels[i] = "P" + strconv.Itoa(i+1)
	}

	headline := map[string]string{}
	for hint, path := range map[string]string{"current": m.Value, "previous": m.Previous, "delta": m.Delta} {
		if path == "" {
			continue
		}
		if v := number(lookup(root, path)); v != nil {
			headline[hint] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}

	return chart.Payload{
		Labels: labels,
		Series: []chart.Series{{Name: "sparkline", Values: values, StyleHints: headline}},
	}
}

func (m Mapping) normalizeFields(root jsoniter.Any) chart.Payload {
	labels := make([]string, len(m.Fields))
	values := make([]*float64, len(m.Fields))
	for i, f := range m.Fields {
		labels[i] = f.Name
		values[i] = number(lookup(root, f.Path))
	}
	series := m.Title
	if series == "" {
		series = "value"
	}
	return chart.Payload{
		Labels: labels,
		Series: []chart.Series{{Name: series, Values: values}},
	}
}

func (m Mapping) hints(root jsoniter.Any) map[string]string {
	hints := maps.Clone(m.Hints)
	if hints == nil {
		hints = map[string]string{}
	}
	for hint, path := range m.HintFields {
		if v := scalarString(lookup(root, path)); v != "" {
			hints[hint] = v
		}
	}
	return hints
}

func mergeHints(base, own map[string]string) map[string]string {
	if len(base) == 0 && len(own) == 0 {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, own)
	return out
}

// lookup follows a dot-separated path; numeric segments index arrays.
func lookup(root jsoniter.Any, path string) jsoniter.Any {
	if path == "" {
		return jsoniter.Wrap(nil)
	}
	keys := make([]any, 0, strings.Count(path, ".")+1)
	for _, part := range strings.Split(path, ".") {
		if idx, err := strconv.Atoi(part); err == nil {
			keys = append(keys, idx)
			continue
		}
		keys = append(keys, part)
	}
	return root.Get(keys...)
}

// number reads a numeric value. Anything that is not a finite number becomes
// an explicit missing value.
func number(v jsoniter.Any) *float64 {
	switch v.ValueType() {
	case jsoniter.NumberValue:
		return finite(v.ToFloat64())
	case jsoniter.StringValue:
		// Some endpoints send formatted numbers such as "56.93%", "1,200" or "2.41 mins".
		fields := strings.Fields(v.ToString())
		if len(fields) == 0 {
			return nil
		}
		cleaned := strings.TrimSuffix(fields[0], "%")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return finite(f)
		}
	}
	return nil
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return chart.Float(f)
}

func numberArray(v jsoniter.Any) []*float64 {
	if v.ValueType() != jsoniter.ArrayValue {
		return []*float64{}
	}
	out := make([]*float64, v.Size())
	for i := range out {
		out[i] = number(v.Get(i))
	}
	return out
}

func stringArray(v jsoniter.Any) []string {
	if v.ValueType() != jsoniter.ArrayValue {
		return []string{}
	}
	out := make([]string, v.Size())
	for i := range out {
		out[i] = scalarString(v.Get(i))
	}
	return out
}

func scalarString(v jsoniter.Any) string {
	switch v.ValueType() {
	case jsoniter.StringValue, jsoniter.NumberValue, jsoniter.BoolValue:
		return v.ToString()
	default:
		return ""
	}
}

func typeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.NilValue:
		return "null"
	default:
		return "invalid"
	}
}
