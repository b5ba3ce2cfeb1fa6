// Package settings reads scenario configuration: a YAML document of
// namespaces, each mapping keys to scalars or lists.
//
//	MovementModel:
//	  worldSize: 4500, 3400
//	  rngSeed: 1
//	Group1:
//	  nrofHosts: 40
//	  okMaps: [1, 2]
package settings

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/dtn-contact-sim/core"
)

// Settings is a parsed configuration document. It is read-only once
// loaded.
type Settings struct {
	path   string
	values map[string]map[string]any
}

// Load reads the YAML document at path.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: settings file %q: %v", core.ErrIO, path, err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("settings file %q: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Parse reads a YAML document from r.
func Parse(r io.Reader) (*Settings, error) {
	var doc map[string]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	return FromMap(doc), nil
}

// FromMap wraps already decoded values.
func FromMap(values map[string]map[string]any) *Settings {
	if values == nil {
		values = make(map[string]map[string]any)
	}
	return &Settings{values: values}
}

// Path returns the file the settings were loaded from, if any.
func (s *Settings) Path() string {
	return s.path
}

// Namespaces returns the namespace names in sorted order.
func (s *Settings) Namespaces() []string {
	out := make([]string, 0, len(s.values))
	for ns := range s.values {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Sub returns a view on namespace ns. Keys missing from ns are looked up
// in fallback, when fallback is not empty.
func (s *Settings) Sub(ns, fallback string) *Section {
	return &Section{s: s, ns: ns, fallback: fallback}
}

// Section is a namespace view of Settings.
type Section struct {
	s        *Settings
	ns       string
	fallback string
}

// Namespace returns the primary namespace of the view.
func (sec *Section) Namespace() string {
	return sec.ns
}

// lookup returns the raw value and the fully-qualified key it came from.
func (sec *Section) lookup(key string) (any, string, bool) {
	if v, ok := sec.s.values[sec.ns][key]; ok {
		return v, sec.ns + "." + key, true
	}
	if sec.fallback != "" {
		if v, ok := sec.s.values[sec.fallback][key]; ok {
			return v, sec.fallback + "." + key, true
		}
	}
	return nil, sec.ns + "." + key, false
}

// Contains reports whether key is set in the namespace or its fallback.
func (sec *Section) Contains(key string) bool {
	_, _, ok := sec.lookup(key)
	return ok
}

func (sec *Section) missing(key string) error {
	return fmt.Errorf("%w: setting %s.%s not found", core.ErrConfig, sec.ns, key)
}

func invalid(fq string, v any, want string) error {
	return fmt.Errorf("%w: setting %s = %v is not %s", core.ErrConfig, fq, v, want)
}

// String returns the value of key as text.
func (sec *Section) String(key string) (string, error) {
	v, _, ok := sec.lookup(key)
	if !ok {
		return "", sec.missing(key)
	}
	return scalarText(v), nil
}

// StringOr returns the value of key, or def when unset.
func (sec *Section) StringOr(key, def string) string {
	v, _, ok := sec.lookup(key)
	if !ok {
		return def
	}
	return scalarText(v)
}

// Float returns the value of key as a number.
func (sec *Section) Float(key string) (float64, error) {
	v, fq, ok := sec.lookup(key)
	if !ok {
		return 0, sec.missing(key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, invalid(fq, v, "a number")
	}
	return f, nil
}

// FloatOr returns the value of key, or def when unset.
func (sec *Section) FloatOr(key string, def float64) (float64, error) {
	if !sec.Contains(key) {
		return def, nil
	}
	return sec.Float(key)
}

// Int returns the value of key as an integer.
func (sec *Section) Int(key string) (int, error) {
	v, fq, ok := sec.lookup(key)
	if !ok {
		return 0, sec.missing(key)
	}
	i, ok := toInt(v)
	if !ok {
		return 0, invalid(fq, v, "an integer")
	}
	return i, nil
}

// IntOr returns the value of key, or def when unset.
func (sec *Section) IntOr(key string, def int) (int, error) {
	if !sec.Contains(key) {
		return def, nil
	}
	return sec.Int(key)
}

// Bool returns the value of key as a boolean.
func (sec *Section) Bool(key string) (bool, error) {
	v, fq, ok := sec.lookup(key)
	if !ok {
		return false, sec.missing(key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, invalid(fq, v, "a boolean")
		}
		return parsed, nil
	default:
		return false, invalid(fq, v, "a boolean")
	}
}

// BoolOr returns the value of key, or def when unset.
func (sec *Section) BoolOr(key string, def bool) (bool, error) {
	if !sec.Contains(key) {
		return def, nil
	}
	return sec.Bool(key)
}

// CSVFloats returns a list value, given either as a YAML sequence or as
// comma separated text. A positive count requires exactly that many items.
func (sec *Section) CSVFloats(key string, count int) ([]float64, error) {
	items, fq, err := sec.list(key, count)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(items))
	for _, it := range items {
		f, ok := toFloat(it)
		if !ok {
			return nil, invalid(fq, it, "a number")
		}
		out = append(out, f)
	}
	return out, nil
}

// CSVInts is CSVFloats for integers.
func (sec *Section) CSVInts(key string, count int) ([]int, error) {
	items, fq, err := sec.list(key, count)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		i, ok := toInt(it)
		if !ok {
			return nil, invalid(fq, it, "an integer")
		}
		out = append(out, i)
	}
	return out, nil
}

// CSVFloatsOr returns def when key is unset.
func (sec *Section) CSVFloatsOr(key string, count int, def []float64) ([]float64, error) {
	if !sec.Contains(key) {
		return def, nil
	}
	return sec.CSVFloats(key, count)
}

// CSVIntsOr returns def when key is unset.
func (sec *Section) CSVIntsOr(key string, count int, def []int) ([]int, error) {
	if !sec.Contains(key) {
		return def, nil
	}
	return sec.CSVInts(key, count)
}

func (sec *Section) list(key string, count int) ([]any, string, error) {
	v, fq, ok := sec.lookup(key)
	if !ok {
		return nil, fq, sec.missing(key)
	}
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case string:
		for _, part := range strings.Split(l, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	default:
		items = []any{v}
	}
	if count > 0 && len(items) != count {
		return nil, fq, fmt.Errorf("%w: setting %s needs %d values, got %d", core.ErrConfig, fq, count, len(items))
	}
	return items, fq, nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
