package mapview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestCanvasRecordsOperations(t *testing.T) {
	c := NewCanvas(nil)

	if err := c.AddSource("points", Source{Type: "geojson", Data: "/data/x.geojson"}); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := c.AddSource("points", Source{Type: "geojson"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate source err = %v, want ErrDuplicate", err)
	}
	if err := c.AddLayer(Layer{ID: "orphan", Type: TypeCircle, Source: "missing"}); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("orphan layer err = %v, want ErrUnknownSource", err)
	}

	layout := map[string]interface{}{"visibility": Hidden}
	if err := c.AddLayer(Layer{ID: "point-layer", Type: TypeCircle, Source: "points", Layout: layout}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	layout["visibility"] = Visible
	l, _ := c.Layer("point-layer")
	if l.Visibility() != Hidden {
		t.Error("canvas must not alias the caller's layout map")
	}

	if err := c.SetLayoutProperty("point-layer", "visibility", Visible); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFilter("point-layer", Equals("name", "R1")); err != nil {
		t.Fatal(err)
	}
	l, _ = c.Layer("point-layer")
	if l.Visibility() != Visible {
		t.Errorf("visibility = %q", l.Visibility())
	}
	if !reflect.DeepEqual(l.Filter, Filter{"all", Filter{"==", "name", "R1"}}) {
		t.Errorf("filter = %v", l.Filter)
	}

	if err := c.SetFilter("nope", nil); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("SetFilter unknown err = %v", err)
	}
	if err := c.SetLayoutProperty("nope", "visibility", Hidden); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("SetLayoutProperty unknown err = %v", err)
	}
	if err := c.SetSourceData("nope", nil); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("SetSourceData unknown err = %v", err)
	}

	c.SetCursor(CursorPointer)
	snap := c.Snapshot()
	if len(snap.Sources) != 1 || len(snap.Layers) != 1 || snap.Cursor != CursorPointer {
		t.Errorf("snapshot = %+v", snap)
	}

	c.Reset()
	snap = c.Snapshot()
	if len(snap.Sources) != 0 || len(snap.Layers) != 0 || snap.Cursor != CursorDefault {
		t.Errorf("after reset snapshot = %+v", snap)
	}
}

func TestLayerCopiesAreIndependent(t *testing.T) {
	c := NewCanvas(nil)
	if err := c.AddSource("routes", Source{Type: "geojson"}); err != nil {
		t.Fatal(err)
	}
	err := c.AddLayer(Layer{
		ID:     "route-layer",
		Type:   TypeLine,
		Source: "routes",
		Paint:  map[string]interface{}{"line-color": "red"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetFilter("route-layer", Equals("name", "R1")); err != nil {
		t.Fatal(err)
	}
	if !c.HasLayer("route-layer") || c.HasLayer("nope") {
		t.Error("HasLayer mismatch")
	}

	l, _ := c.Layer("route-layer")
	l.Paint["line-color"] = "blue"
	l.Filter[1].(Filter)[2] = "R2"

	snap := c.Snapshot()
	snap.Layers[0].Paint["line-width"] = 9
	snap.Layers[0].Filter[0] = "any"

	got, _ := c.Layer("route-layer")
	if got.Paint["line-color"] != "red" || len(got.Paint) != 1 {
		t.Errorf("paint leaked into canvas: %v", got.Paint)
	}
	if !reflect.DeepEqual(got.Filter, Equals("name", "R1")) {
		t.Errorf("filter leaked into canvas: %v", got.Filter)
	}
}

func TestLayerVisibilityDefault(t *testing.T) {
	if v := (Layer{}).Visibility(); v != Visible {
		t.Errorf("default visibility = %q, want visible", v)
	}
}

func TestHTTPImageLoader(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 24, 24))); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := NewCanvas(HTTPImageLoader(srv.Client()))
	img, err := c.LoadImage(context.Background(), srv.URL+"/railway-station.png")
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if img.Width != 24 || img.Height != 24 {
		t.Errorf("dimensions = %dx%d, want 24x24", img.Width, img.Height)
	}
	if _, err := c.LoadImage(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("expected error for missing image")
	}

	if err := c.AddImage("custom-marker", img); err != nil {
		t.Fatal(err)
	}
	if !c.HasImage("custom-marker") {
		t.Error("image not recorded")
	}
	if err := c.AddImage("custom-marker", img); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate image err = %v", err)
	}
}
