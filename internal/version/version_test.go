package version

import "testing"

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestVersionStringFallback(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = ""
	if s := String(); s == "" {
		t.Fatalf("fallback version string is empty")
	}
}
