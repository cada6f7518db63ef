// Package panel renders the side panel shown when a map feature is clicked.
package panel

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/Zachdehooge/structure-map/internal/fetcher"
)

// Kind selects how a feature's properties are rendered.
type Kind string

const (
	KindPoint Kind = "point"
	KindName  Kind = "name"
)

const (
	OpenWidth   = "20%"
	ClosedWidth = "0"
	Padding     = "0px 25px"
)

var contentTmpl = template.Must(template.New("panel").Parse(
	`{{define "station"}}<h1>{{.Title}}</h1>
<table>
{{range .Rows}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}` +
		`{{define "element"}}<table style="margin-top:50px">
{{range .Rows}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}`))

type row struct {
	Key   string
	Value string
}

// State is everything the page needs to draw the panel.
type State struct {
	Open            bool               `json:"open"`
	Width           string             `json:"width"`
	Padding         string             `json:"padding,omitempty"`
	Content         template.HTML      `json:"content"`
	SelectorVisible bool               `json:"selectorVisible"`
	Kind            Kind               `json:"kind,omitempty"`
	Properties      fetcher.Properties `json:"properties,omitempty"`
}

// Controller owns the panel state. Each transition replaces the whole state
// under one lock, so readers never see content from one click with chrome
// from another.
type Controller struct {
	mu    sync.Mutex
	state State
}

// NewController returns a closed panel.
func NewController() *Controller {
	return &Controller{state: State{Width: ClosedWidth}}
}

// ShowInfo renders props and opens the panel. Stations get a heading and
// reveal the route selector; anything else renders as a plain table and
// hides it.
func (c *Controller) ShowInfo(kind Kind, props fetcher.Properties) (State, error) {
	var (
		content  template.HTML
		err      error
		selector bool
	)
	if kind == KindName {
		content, err = StationContent(props)
		selector = true
	} else {
		content, err = ElementContent(props)
	}
	if err != nil {
		return c.Snapshot(), err
	}

	next := State{
		Open:            true,
		Width:           OpenWidth,
		Padding:         Padding,
		Content:         content,
		SelectorVisible: selector,
		Kind:            kind,
		Properties:      props,
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	return next, nil
}

// Close collapses the panel. Content and selector visibility stay as they
// were so a reopened panel starts from the last render. Closing a closed
// panel is a no-op.
func (c *Controller) Close() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Open = false
	c.state.Width = ClosedWidth
	return c.state
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StationContent renders a station: its name as the heading and every other
// property as a table row.
func StationContent(props fetcher.Properties) (template.HTML, error) {
	data := struct {
		Title string
		Rows  []row
	}{Title: props.String("name")}
	for _, p := range props {
		if p.Key != "name" {
			data.Rows = append(data.Rows, row{Key: p.Key, Value: fetcher.FormatValue(p.Value)})
		}
	}
	return render("station", data)
}

// ElementContent renders every property of a generic element as a table row.
func ElementContent(props fetcher.Properties) (template.HTML, error) {
	data := struct{ Rows []row }{}
	for _, p := range props {
		data.Rows = append(data.Rows, row{Key: p.Key, Value: fetcher.FormatValue(p.Value)})
	}
	return render("element", data)
}

func render(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := contentTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
