package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Property is one key/value pair of a feature's property set.
type Property struct {
	Key   string
	Value interface{}
}

// Properties keeps feature properties in document order. The info panel
// renders rows in the order the data file lists them, which a Go map can't do.
type Properties []Property

// Get returns the value stored under key.
func (p Properties) Get(key string) (interface{}, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return nil, false
}

// String returns the display form of the value stored under key, or "" if absent.
func (p Properties) String(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Set replaces the value of an existing key in place or appends a new one.
func (p Properties) Set(key string, value interface{}) Properties {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Property{Key: key, Value: value})
}

// UnmarshalJSON decodes a JSON object while remembering key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read properties: %w", err)
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties must be an object, got %v", tok)
	}

	var out Properties
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read property key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("unexpected property key %v", kt)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("failed to read property %q: %w", key, err)
		}
		out = out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to close properties: %w", err)
	}

	*p = out
	return nil
}

// MarshalJSON writes the properties as a JSON object in stored order.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(prop.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(prop.Value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", prop.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatValue renders a scalar property value the way a browser would
// stringify it when concatenated into markup.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Feature is a single geometry plus its ordered property set.
type Feature struct {
	Type       string            `json:"type"`
	ID         interface{}       `json:"id,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties Properties        `json:"properties"`
}

// NewFeature wraps an orb geometry in a feature with the given properties.
func NewFeature(g orb.Geometry, props Properties) *Feature {
	f := &Feature{Type: "Feature", Properties: props}
	if g != nil {
		f.Geometry = geojson.NewGeometry(g)
	}
	return f
}

// Name returns the feature's "name" property, the key routes are selected by.
func (f *Feature) Name() string {
	return f.Properties.String("name")
}

// FeatureCollection is an ordered set of features forming one dataset.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection. It doubles as the
// placeholder bound to a source before its document arrives.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []*Feature{}}
}

// Append adds features in order.
func (fc *FeatureCollection) Append(fs ...*Feature) {
	fc.Features = append(fc.Features, fs...)
}

// Names lists every feature's name property in document order, duplicates included.
func (fc *FeatureCollection) Names() []string {
	names := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		names = append(names, f.Name())
	}
	return names
}

// Bound is the union of all feature geometries' bounds. ok is false when no
// feature carries a geometry.
func (fc *FeatureCollection) Bound() (bound orb.Bound, ok bool) {
	for _, f := range fc.Features {
		if f.Geometry == nil || f.Geometry.Geometry() == nil {
			continue
		}
		b := f.Geometry.Geometry().Bound()
		if !ok {
			bound, ok = b, true
			continue
		}
		bound = bound.Union(b)
	}
	return bound, ok
}

// Decode parses a GeoJSON FeatureCollection document.
func Decode(data []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}
	if fc.Type == "" {
		fc.Type = "FeatureCollection"
	}
	features := make([]*Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f != nil {
			features = append(features, f)
		}
	}
	fc.Features = features
	return &fc, nil
}
