// Package mapview models the rendering library's map handle. The Map
// interface mirrors the handful of operations the frontend uses, and Canvas
// records them so the page can be generated and the wiring tested without a
// browser.
package mapview

import (
	"context"
	"errors"
)

// Layer types understood by the renderer.
const (
	TypeCircle     = "circle"
	TypeSymbol     = "symbol"
	TypeLine       = "line"
	TypeRaster     = "raster"
	TypeBackground = "background"
)

// Visibility values for the "visibility" layout property.
const (
	Visible = "visible"
	Hidden  = "none"
)

// Cursor values applied to the map canvas.
const (
	CursorDefault = ""
	CursorPointer = "pointer"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownLayer  = errors.New("unknown layer")
	ErrDuplicate     = errors.New("already exists")
)

// Source binds a dataset to the map. Data is either a URL string the
// renderer fetches itself or an inline document.
type Source struct {
	Type        string      `json:"type"`
	Data        interface{} `json:"data,omitempty"`
	Tiles       []string    `json:"tiles,omitempty"`
	TileSize    int         `json:"tileSize,omitempty"`
	Attribution string      `json:"attribution,omitempty"`
}

// Filter is a renderer filter expression such as ["==", "name", "R1"].
type Filter []interface{}

// Equals builds the ["all", ["==", key, value]] filter used for route selection.
func Equals(key string, value interface{}) Filter {
	return Filter{"all", Filter{"==", key, value}}
}

// Layer is a named rendering rule over a source.
type Layer struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Source  string                 `json:"source,omitempty"`
	MinZoom float64                `json:"minzoom,omitempty"`
	MaxZoom float64                `json:"maxzoom,omitempty"`
	Layout  map[string]interface{} `json:"layout,omitempty"`
	Paint   map[string]interface{} `json:"paint,omitempty"`
	Filter  Filter                 `json:"filter,omitempty"`
}

// Visibility returns the layer's layout visibility, defaulting to visible.
func (l Layer) Visibility() string {
	if v, ok := l.Layout["visibility"].(string); ok {
		return v
	}
	return Visible
}

// Image is a loaded icon that symbol layers can reference.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Map is the subset of the rendering library's map handle the frontend drives.
type Map interface {
	AddSource(id string, src Source) error
	SetSourceData(id string, data interface{}) error
	AddLayer(layer Layer) error
	HasLayer(id string) bool
	SetFilter(layerID string, filter Filter) error
	SetLayoutProperty(layerID, name string, value interface{}) error
	LoadImage(ctx context.Context, url string) (Image, error)
	AddImage(id string, img Image) error
	SetCursor(cursor string)
}
