package mapview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
)

// ImageLoader fetches an image and reports its dimensions.
type ImageLoader func(ctx context.Context, url string) (Image, error)

// NamedSource pairs a source with its id, keeping insertion order.
type NamedSource struct {
	ID string `json:"id"`
	Source
}

// NamedImage pairs an image with its id.
type NamedImage struct {
	ID string `json:"id"`
	Image
}

// Snapshot is the recorded map state in the order it was built.
type Snapshot struct {
	Sources []NamedSource `json:"sources"`
	Layers  []Layer       `json:"layers"`
	Images  []NamedImage  `json:"images"`
	Cursor  string        `json:"cursor"`
}

// Canvas is an in-memory Map that records every operation applied to it.
type Canvas struct {
	mu      sync.RWMutex
	sources []NamedSource
	layers  []Layer
	images  []NamedImage
	cursor  string
	loader  ImageLoader
}

// NewCanvas returns an empty canvas. A nil loader falls back to HTTPImageLoader.
func NewCanvas(loader ImageLoader) *Canvas {
	if loader == nil {
		loader = HTTPImageLoader(nil)
	}
	return &Canvas{loader: loader}
}

// Reset drops all sources, layers and images, as a style change does.
func (c *Canvas) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = nil
	c.layers = nil
	c.images = nil
	c.cursor = CursorDefault
}

func (c *Canvas) sourceIndex(id string) int {
	for i := range c.sources {
		if c.sources[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Canvas) layerIndex(id string) int {
	for i := range c.layers {
		if c.layers[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Canvas) AddSource(id string, src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sourceIndex(id) >= 0 {
		return fmt.Errorf("source %q: %w", id, ErrDuplicate)
	}
	c.sources = append(c.sources, NamedSource{ID: id, Source: src})
	return nil
}

func (c *Canvas) SetSourceData(id string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.sourceIndex(id)
	if i < 0 {
		return fmt.Errorf("source %q: %w", id, ErrUnknownSource)
	}
	c.sources[i].Data = data
	return nil
}

func (c *Canvas) AddLayer(layer Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layerIndex(layer.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", layer.ID, ErrDuplicate)
	}
	if layer.Source != "" && c.sourceIndex(layer.Source) < 0 {
		return fmt.Errorf("layer %q references source %q: %w", layer.ID, layer.Source, ErrUnknownSource)
	}
	c.layers = append(c.layers, copyLayer(layer))
	return nil
}

func (c *Canvas) HasLayer(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layerIndex(id) >= 0
}

func (c *Canvas) SetFilter(layerID string, filter Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", layerID, ErrUnknownLayer)
	}
	c.layers[i].Filter = copyFilter(filter)
	return nil
}

func (c *Canvas) SetLayoutProperty(layerID, name string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", layerID, ErrUnknownLayer)
	}
	if c.layers[i].Layout == nil {
		c.layers[i].Layout = map[string]interface{}{}
	}
	c.layers[i].Layout[name] = value
	return nil
}

func (c *Canvas) LoadImage(ctx context.Context, url string) (Image, error) {
	return c.loader(ctx, url)
}

func (c *Canvas) AddImage(id string, img Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.images {
		if existing.ID == id {
			return fmt.Errorf("image %q: %w", id, ErrDuplicate)
		}
	}
	c.images = append(c.images, NamedImage{ID: id, Image: img})
	return nil
}

func (c *Canvas) SetCursor(cursor string) {
	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()
}

// Cursor returns the current canvas cursor.
func (c *Canvas) Cursor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// Layer returns a copy of the named layer.
func (c *Canvas) Layer(id string) (Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.layerIndex(id)
	if i < 0 {
		return Layer{}, false
	}
	return copyLayer(c.layers[i]), true
}

// Source returns the named source.
func (c *Canvas) Source(id string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.sourceIndex(id)
	if i < 0 {
		return Source{}, false
	}
	return c.sources[i].Source, true
}

// HasImage reports whether an image was registered under id.
func (c *Canvas) HasImage(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, img := range c.images {
		if img.ID == id {
			return true
		}
	}
	return false
}

// Snapshot copies the recorded state.
func (c *Canvas) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		Sources: append([]NamedSource(nil), c.sources...),
		Images:  append([]NamedImage(nil), c.images...),
		Cursor:  c.cursor,
	}
	for _, l := range c.layers {
		s.Layers = append(s.Layers, copyLayer(l))
	}
	return s
}

func copyLayer(l Layer) Layer {
	l.Layout = copyProps(l.Layout)
	l.Paint = copyProps(l.Paint)
	l.Filter = copyFilter(l.Filter)
	return l
}

func copyProps(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// copyFilter deep-copies nested filter expressions.
func copyFilter(f Filter) Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for i, v := range f {
		switch t := v.(type) {
		case Filter:
			out[i] = copyFilter(t)
		case []interface{}:
			out[i] = []interface{}(copyFilter(Filter(t)))
		default:
			out[i] = v
		}
	}
	return out
}

// HTTPImageLoader loads images over HTTP, or from disk for non-URL paths,
// and decodes their dimensions.
func HTTPImageLoader(hc *http.Client) ImageLoader {
	if hc == nil {
		hc = http.DefaultClient
	}
	return func(ctx context.Context, url string) (Image, error) {
		var data []byte
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return Image{}, err
			}
			resp, err := hc.Do(req)
			if err != nil {
				return Image{}, fmt.Errorf("failed to load image %s: %w", url, err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				return Image{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
			}
			if data, err = io.ReadAll(resp.Body); err != nil {
				return Image{}, fmt.Errorf("failed to read image %s: %w", url, err)
			}
		} else {
			var err error
			if data, err = os.ReadFile(url); err != nil {
				return Image{}, fmt.Errorf("failed to load image %s: %w", url, err)
			}
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Image{}, fmt.Errorf("failed to decode image %s: %w", url, err)
		}
		return Image{URL: url, Width: cfg.Width, Height: cfg.Height}, nil
	}
}
