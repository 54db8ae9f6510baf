package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// tree renders cfg as generic JSON. Paths below are JSON field names joined
// by dots, e.g. "detect.stableTicks" or "site.selectors.response".
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func splitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid path %q", path)
		}
	}
	return parts, nil
}

// GetByPath returns the value at path as it appears in the JSON file:
// numbers are float64, sections are map[string]any.
func GetByPath(cfg *Config, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range parts {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		val, ok := section[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
		current = val
	}
	return current, nil
}

// SetByPath parses raw according to the Go type of the field at path and
// stores it. String fields take raw verbatim, so "1234" or "true" stay
// strings there. New keys are only accepted inside maps such as
// site.selectors. cfg is left untouched on error.
func SetByPath(cfg *Config, path, raw string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	typ, err := fieldType(parts)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	val, err := coerce(typ, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	m, err := tree(cfg)
	if err != nil {
		return err
	}
	parent := m
	for _, key := range parts[:len(parts)-1] {
		switch child := parent[key].(type) {
		case map[string]any:
			parent = child
		case nil:
			// Empty maps are omitted or marshal as null.
			next := make(map[string]any)
			parent[key] = next
			parent = next
		default:
			return fmt.Errorf("cannot traverse into %T at %s", child, key)
		}
	}
	parent[parts[len(parts)-1]] = val

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var next Config
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = next
	return nil
}

// fieldType resolves a dotted path against the JSON names of Config.
func fieldType(parts []string) (reflect.Type, error) {
	t := reflect.TypeOf(Config{})
	for _, key := range parts {
		switch t.Kind() {
		case reflect.Struct:
			f, ok := jsonField(t, key)
			if !ok {
				return nil, fmt.Errorf("unknown key %q", key)
			}
			t = f.Type
		case reflect.Map:
			t = t.Elem()
		default:
			return nil, fmt.Errorf("cannot traverse into %s at %s", t.Kind(), key)
		}
	}
	return t, nil
}

func jsonField(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func coerce(t reflect.Type, raw string) (any, error) {
	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("expected JSON for %s: %w", t.Kind(), err)
		}
		return v, nil
	}
}

// Sanitize returns a copy of the config with the relay access key masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if len(cfg.Site.Selectors) > 0 {
		out.Site.Selectors = make(map[string]string, len(cfg.Site.Selectors))
		for k, v := range cfg.Site.Selectors {
			out.Site.Selectors[k] = v
		}
	}
	if out.Relay.AccessKey != "" {
		out.Relay.AccessKey = maskString(out.Relay.AccessKey)
	}
	return &out
}

// maskString shows the first and last 4 characters of long secrets.
func maskString(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "****" + string(r[len(r)-4:])
}

// Setting is one leaf of the config tree.
type Setting struct {
	Path  string
	Value any
}

// ListPaths returns every leaf setting sorted by path.
func ListPaths(cfg *Config) ([]Setting, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var out []Setting
	flatten("", m, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func flatten(prefix string, m map[string]any, out *[]Setting) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok && len(section) > 0 {
			flatten(path, section, out)
			continue
		}
		*out = append(*out, Setting{Path: path, Value: v})
	}
}
