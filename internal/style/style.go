// Package style holds the named base styles the map can be rendered with and
// picks one from the page URL.
package style

import (
	"fmt"
	"regexp"

	"github.com/Zachdehooge/structure-map/internal/mapview"
)

// Name identifies a registered style.
type Name int

const (
	Default Name = iota
	Background
)

var names = map[Name]string{
	Default:    "default",
	Background: "background",
}

func (n Name) String() string {
	if s, ok := names[n]; ok {
		return s
	}
	return fmt.Sprintf("style(%d)", int(n))
}

// Fn applies a style's sources and layers to a map.
type Fn func(m mapview.Map) error

// Matches "&style=x", "#style=x" and "|style=x" up to the next "&" or end of string.
var styleParam = regexp.MustCompile(`[&|#]style=(.*?)(&|$)`)

// Param extracts the raw style value from a page URL. ok is false when the
// URL carries no style parameter or it is empty.
func Param(href string) (value string, ok bool) {
	m := styleParam.FindStringSubmatch(href)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Parse resolves a style name. Matching is exact, so "Background" is
// unknown. Unknown names report false.
func Parse(s string) (Name, bool) {
	for n, name := range names {
		if name == s {
			return n, true
		}
	}
	return Default, false
}

// Resolve picks the style named in href, falling back to Default when the
// parameter is missing or names nothing registered.
func Resolve(href string) Name {
	raw, ok := Param(href)
	if !ok {
		return Default
	}
	n, ok := Parse(raw)
	if !ok {
		return Default
	}
	return n
}

// For returns the function applying n.
func For(n Name) Fn {
	switch n {
	case Background:
		return applyBackground
	case Default:
		return applyDefault
	default:
		return applyDefault
	}
}

// Select returns the style function for the page URL.
func Select(href string) Fn {
	return For(Resolve(href))
}

// Names lists the registered style names in declaration order.
func Names() []string {
	return []string{Default.String(), Background.String()}
}

const (
	BaseSource = "base"
	BaseLayer  = "base-layer"
)

func applyDefault(m mapview.Map) error {
	err := m.AddSource(BaseSource, mapview.Source{
		Type:        "raster",
		Tiles:       []string{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
		TileSize:    256,
		Attribution: "&copy; OpenStreetMap contributors",
	})
	if err != nil {
		return fmt.Errorf("default style: %w", err)
	}
	err = m.AddLayer(mapview.Layer{
		ID:      BaseLayer,
		Type:    mapview.TypeRaster,
		Source:  BaseSource,
		MinZoom: 0,
		MaxZoom: 19,
	})
	if err != nil {
		return fmt.Errorf("default style: %w", err)
	}
	return nil
}

func applyBackground(m mapview.Map) error {
	err := m.AddLayer(mapview.Layer{
		ID:   BaseLayer,
		Type: mapview.TypeBackground,
		Paint: map[string]interface{}{
			"background-color": "#f8f4f0",
		},
	})
	if err != nil {
		return fmt.Errorf("background style: %w", err)
	}
	return nil
}
