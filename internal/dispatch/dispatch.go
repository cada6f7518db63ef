// Package dispatch routes pointer events to handlers through a table keyed
// by (layer, event), so every binding can be listed and exercised without a
// rendering surface.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
)

// Event is a pointer event kind.
type Event string

const (
	Click      Event = "click"
	MouseEnter Event = "mouseenter"
	MouseLeave Event = "mouseleave"
)

// MapLayer is the pseudo layer id for handlers bound to the map itself.
const MapLayer = ""

// Key identifies one binding.
type Key struct {
	Layer string `json:"layer"`
	Event Event  `json:"event"`
}

func (k Key) String() string {
	if k.Layer == MapLayer {
		return fmt.Sprintf("map:%s", k.Event)
	}
	return fmt.Sprintf("%s:%s", k.Layer, k.Event)
}

// Hit is one rendered layer under the pointer with the features it drew there,
// topmost feature first.
type Hit struct {
	Layer    string             `json:"layer"`
	Features []*fetcher.Feature `json:"features"`
}

// MapEvent is what a handler receives.
type MapEvent struct {
	Type     Event
	Layer    string
	Features []*fetcher.Feature
}

// First returns the first feature under the pointer, or nil.
func (e MapEvent) First() *fetcher.Feature {
	if len(e.Features) == 0 {
		return nil
	}
	return e.Features[0]
}

// Handler reacts to a map event.
type Handler func(MapEvent) error

// Table is the dispatch table. It also tracks which bound layers the
// pointer is currently over to synthesize enter/leave events.
type Table struct {
	mu       sync.Mutex
	handlers map[Key]Handler
	order    []Key
	hovered  map[string]bool
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		handlers: make(map[Key]Handler),
		hovered:  make(map[string]bool),
	}
}

// On binds h to (layer, event). Pass MapLayer for map-wide handlers.
// Rebinding a key replaces the previous handler.
func (t *Table) On(event Event, layer string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := Key{Layer: layer, Event: event}
	if _, ok := t.handlers[k]; !ok {
		t.order = append(t.order, k)
	}
	t.handlers[k] = h
}

// Bindings lists bound keys in registration order.
func (t *Table) Bindings() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Key(nil), t.order...)
}

// Layers lists the distinct layers that have a handler for event.
func (t *Table) Layers(event Event) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, k := range t.order {
		if k.Event == event && k.Layer != MapLayer {
			out = append(out, k.Layer)
		}
	}
	return out
}

func (t *Table) handler(layer string, event Event) Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[Key{Layer: layer, Event: event}]
}

// Click dispatches a click at a point covered by hits (topmost layer first).
// The first hit layer with a click handler takes the event and the map-wide
// handler does not run; otherwise the map-wide handler does.
func (t *Table) Click(hits []Hit) error {
	for _, hit := range hits {
		if len(hit.Features) == 0 {
			continue
		}
		if h := t.handler(hit.Layer, Click); h != nil {
			return h(MapEvent{Type: Click, Layer: hit.Layer, Features: hit.Features})
		}
	}
	if h := t.handler(MapLayer, Click); h != nil {
		return h(MapEvent{Type: Click, Layer: MapLayer})
	}
	return nil
}

// Move updates the hovered layer set from the layers now under the pointer
// and fires mouseleave for layers left and mouseenter for layers entered.
func (t *Table) Move(hits []Hit) error {
	now := make(map[string][]*fetcher.Feature, len(hits))
	for _, hit := range hits {
		if len(hit.Features) > 0 {
			now[hit.Layer] = hit.Features
		}
	}

	t.mu.Lock()
	var left, entered []string
	for layer := range t.hovered {
		if _, ok := now[layer]; !ok {
			left = append(left, layer)
			delete(t.hovered, layer)
		}
	}
	for _, hit := range hits {
		if _, ok := now[hit.Layer]; !ok || t.hovered[hit.Layer] {
			continue
		}
		_, bindsEnter := t.handlers[Key{Layer: hit.Layer, Event: MouseEnter}]
		_, bindsLeave := t.handlers[Key{Layer: hit.Layer, Event: MouseLeave}]
		if bindsEnter || bindsLeave {
			t.hovered[hit.Layer] = true
			entered = append(entered, hit.Layer)
		}
	}
	t.mu.Unlock()

	for _, layer := range left {
		if h := t.handler(layer, MouseLeave); h != nil {
			if err := h(MapEvent{Type: MouseLeave, Layer: layer}); err != nil {
				return err
			}
		}
	}
	for _, layer := range entered {
		if h := t.handler(layer, MouseEnter); h != nil {
			if err := h(MapEvent{Type: MouseEnter, Layer: layer, Features: now[layer]}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Hovered reports whether the pointer is over layer.
func (t *Table) Hovered(layer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hovered[layer]
}
