package filters

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownPreset is wrapped when a preset name is not recognised.
var ErrUnknownPreset = errors.New("unknown date preset")

var presets = map[string]func(today time.Time) (time.Time, time.Time){
	"today": func(d time.Time) (time.Time, time.Time) {
		return d, d
	},
	"last_7_days": func(d time.Time) (time.Time, time.Time) {
		return d.AddDate(0, 0, -6), d
	},
	"last_30_days": func(d time.Time) (time.Time, time.Time) {
		return d.AddDate(0, 0, -29), d
	},
	"last_90_days": func(d time.Time) (time.Time, time.Time) {
		return d.AddDate(0, 0, -89), d
	},
	"month_to_date": func(d time.Time) (time.Time, time.Time) {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location()), d
	},
	"quarter_to_date": func(d time.Time) (time.Time, time.Time) {
		firstMonth := time.Month((int(d.Month())-1)/3*3 + 1)
		return time.Date(d.Year(), firstMonth, 1, 0, 0, 0, 0, d.Location()), d
	},
	"year_to_date": func(d time.Time) (time.Time, time.Time) {
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location()), d
	},
}

// Preset resolves a named period relative to now.
func Preset(name string, now time.Time) (*DateRange, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, &ValidationError{Field: "preset", Reason: fmt.Sprintf("%q is not a known preset", name), Err: ErrUnknownPreset}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start, end := fn(today)
	return &DateRange{Start: start.Format(DateLayout), End: end.Format(DateLayout)}, nil
}

// PresetNames lists the supported presets in a stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
