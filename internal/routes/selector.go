// Package routes implements the station route dropdown: populating it from
// the station-routes dataset and highlighting the chosen route on the map.
package routes

import (
	"fmt"
	"sync"

	"github.com/Zachdehooge/structure-map/internal/mapview"
)

// None is the selector value meaning no route is chosen.
const None = "none"

// Option is one dropdown entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// LayerState is what the selector last applied to one route layer.
type LayerState struct {
	ID         string         `json:"id"`
	Visibility string         `json:"visibility"`
	Filter     mapview.Filter `json:"filter,omitempty"`
}

// Selector drives the route dropdown. Both route layers are always changed
// together so they are shown or hidden as a pair.
type Selector struct {
	m      mapview.Map
	cell   *Cell
	layers []string

	mu       sync.Mutex
	options  []Option
	selected string
}

// NewSelector binds a selector to the route layers it controls.
func NewSelector(m mapview.Map, cell *Cell, layers ...string) *Selector {
	return &Selector{
		m:        m,
		cell:     cell,
		layers:   layers,
		options:  []Option{{Value: None, Label: None}},
		selected: None,
	}
}

// Populate rebuilds the options from the cell's collection: the "none"
// sentinel first, then one option per feature in document order. Duplicate
// names produce duplicate options.
func (s *Selector) Populate() []Option {
	fc := s.cell.Get()
	opts := make([]Option, 0, len(fc.Features)+1)
	opts = append(opts, Option{Value: None, Label: None})
	for _, name := range fc.Names() {
		opts = append(opts, Option{Value: name, Label: name})
	}

	s.mu.Lock()
	s.options = opts
	s.mu.Unlock()
	return append([]Option(nil), opts...)
}

// Options returns the current dropdown entries.
func (s *Selector) Options() []Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Option(nil), s.options...)
}

// Selected returns the current selection.
func (s *Selector) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Select applies value. "none" hides both route layers and leaves their
// filters alone; any other value filters both to name == value and shows them.
func (s *Selector) Select(value string) ([]LayerState, error) {
	if value == "" {
		value = None
	}

	// Both layers change together or not at all.
	for _, id := range s.layers {
		if !s.m.HasLayer(id) {
			return nil, fmt.Errorf("route layer %q: %w", id, mapview.ErrUnknownLayer)
		}
	}

	states := make([]LayerState, 0, len(s.layers))
	for _, id := range s.layers {
		st := LayerState{ID: id, Visibility: mapview.Hidden}
		if value != None {
			st.Filter = mapview.Equals("name", value)
			st.Visibility = mapview.Visible
			if err := s.m.SetFilter(id, st.Filter); err != nil {
				return nil, fmt.Errorf("failed to filter %s: %w", id, err)
			}
		}
		if err := s.m.SetLayoutProperty(id, "visibility", st.Visibility); err != nil {
			return nil, fmt.Errorf("failed to set visibility on %s: %w", id, err)
		}
		states = append(states, st)
	}

	s.mu.Lock()
	s.selected = value
	s.mu.Unlock()
	return states, nil
}
