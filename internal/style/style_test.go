package style

import (
	"testing"

	"github.com/Zachdehooge/structure-map/internal/mapview"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		href string
		want Name
	}{
		{"http://localhost:8080/", Default},
		{"http://localhost:8080/#style=background", Background},
		{"http://localhost:8080/?x=1&style=background", Background},
		{"http://localhost:8080/#style=background&location=14/49.87/8.66", Background},
		{"http://localhost:8080/#style=default", Default},
		{"http://localhost:8080/#style=satellite", Default},
		{"http://localhost:8080/#style=Background", Default},
		{"http://localhost:8080/#style=%20background", Default},
		{"http://localhost:8080/#style=", Default},
		{"http://localhost:8080/?style=background", Default}, // "?" is not a recognized delimiter
	}
	for _, tt := range tests {
		if got := Resolve(tt.href); got != tt.want {
			t.Errorf("Resolve(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}
}

func TestParam(t *testing.T) {
	v, ok := Param("http://h/#location=1/2/3&style=background&x=y")
	if !ok || v != "background" {
		t.Errorf("Param = %q, %v", v, ok)
	}
	if _, ok := Param("http://h/"); ok {
		t.Error("expected no style parameter")
	}
}

func TestSelectAppliesStyle(t *testing.T) {
	c := mapview.NewCanvas(nil)
	if err := Select("http://h/#style=background")(c); err != nil {
		t.Fatalf("apply: %v", err)
	}
	l, ok := c.Layer(BaseLayer)
	if !ok || l.Type != mapview.TypeBackground {
		t.Errorf("background layer = %+v, %v", l, ok)
	}

	c = mapview.NewCanvas(nil)
	if err := Select("http://h/#style=unknown")(c); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := c.Source(BaseSource); !ok {
		t.Error("unknown style should fall back to default, which adds the base source")
	}
}

func TestForUnregisteredFallsBack(t *testing.T) {
	c := mapview.NewCanvas(nil)
	if err := For(Name(42))(c); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Source(BaseSource); !ok {
		t.Error("unregistered name should apply default style")
	}
	if Name(42).String() != "style(42)" {
		t.Errorf("String() = %q", Name(42).String())
	}
}

func TestNames(t *testing.T) {
	got := Names()
	if len(got) != 2 || got[0] != "default" || got[1] != "background" {
		t.Errorf("Names() = %v", got)
	}
	for _, n := range got {
		if _, ok := Parse(n); !ok {
			t.Errorf("Parse(%q) failed", n)
		}
	}
}
