package main

import (
	"strings"
	"testing"
)

func TestStaticPageWarning(t *testing.T) {
	if w := staticPageWarning("http://localhost:8080", 8080); w != "" {
		t.Errorf("warning with api set = %q", w)
	}
	w := staticPageWarning("", 9090)
	if w == "" {
		t.Fatal("expected a warning without --api")
	}
	if !strings.Contains(w, "--api http://localhost:9090") {
		t.Errorf("warning does not suggest the serve address: %q", w)
	}
}
