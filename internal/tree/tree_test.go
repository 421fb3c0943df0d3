package tree

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "CPU usage", expected: "CPU usage"},
		{name: "slashes", input: "infra/prod\\db", expected: "infra-prod-db"},
		{name: "colon", input: "Team: SRE", expected: "Team- SRE"},
		{name: "dropped characters", input: `a*b?c"d<e>f|g`, expected: "abcdefg"},
		{name: "trimmed", input: "  padded \t", expected: "padded"},
		{name: "blank", input: "   ", expected: ""},
		{name: "only forbidden", input: "*?|", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeNeverReturnsForbiddenCharacters(t *testing.T) {
	inputs := []string{
		`/\:*?"<>|`,
		`dash: "prod" <main> | v2/final\draft?`,
		strings.Repeat(`a/b\c:d*e?f"g<h>i|`, 40),
	}
	for _, input := range inputs {
		got := Sanitize(input)
		if strings.ContainsAny(got, `/\:*?"<>|`) {
			t.Errorf("Sanitize(%q) = %q still contains forbidden characters", input, got)
		}
	}
}

func TestSanitizeLength(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
	}{
		{name: "ascii over default", input: strings.Repeat("x", 300), max: MaxNameLength},
		{name: "multibyte over default", input: strings.Repeat("é", 200), max: MaxNameLength},
		{name: "small bound", input: "dashboard", max: 4},
		{name: "cut inside rune", input: "aé", max: 2},
		{name: "zero", input: "dashboard", max: 0},
		{name: "negative", input: "dashboard", max: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeN(tt.input, tt.max)
			limit := tt.max
			if limit < 0 {
				limit = 0
			}
			if len(got) > limit {
				t.Errorf("SanitizeN() length = %d, want <= %d", len(got), limit)
			}
			if !utf8.ValidString(got) {
				t.Errorf("SanitizeN() = %q is not valid UTF-8", got)
			}
		})
	}

	if got := SanitizeN("aé", 2); got != "a" {
		t.Errorf("SanitizeN(\"aé\", 2) = %q, want %q", got, "a")
	}
	if got := Sanitize(strings.Repeat("x", 300)); len(got) != MaxNameLength {
		t.Errorf("Sanitize() length = %d, want %d", len(got), MaxNameLength)
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	base := t.TempDir()
	paths := []string{
		filepath.Join(base, "a"),
		filepath.Join(base, "b", "c", "d"),
		filepath.Join(base, "a"),
	}

	for round := 1; round <= 2; round++ {
		if errs := Provision(paths); len(errs) != 0 {
			t.Fatalf("round %d: Provision() errors = %v", round, errs)
		}
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil || !info.IsDir() {
				t.Fatalf("round %d: %s is not a directory (err=%v)", round, p, err)
			}
		}
	}
}

func TestProvisionContinuesAfterFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	paths := []string{
		filepath.Join(blocker, "child"),
		filepath.Join(base, "ok"),
	}
	errs := Provision(paths)
	if len(errs) != 1 {
		t.Fatalf("Provision() returned %d errors, want 1", len(errs))
	}
	var dirErr *DirectoryCreateError
	if !errors.As(errs[0], &dirErr) || dirErr.Path != paths[0] {
		t.Errorf("expected DirectoryCreateError for %s, got %v", paths[0], errs[0])
	}
	if _, err := os.Stat(paths[1]); err != nil {
		t.Errorf("sibling directory was not created: %v", err)
	}
}

func TestNewLayout(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	layout := NewLayout("/srv", "prod", ts)

	wantRoot := filepath.Join("/srv", "Grafana_backup", "prod_050324140709")
	if layout.Root != wantRoot {
		t.Errorf("Root = %s, want %s", layout.Root, wantRoot)
	}
	if layout.ContactPointsAll != filepath.Join(wantRoot, "grafana_contactPoints", "All") {
		t.Errorf("ContactPointsAll = %s", layout.ContactPointsAll)
	}

	dirs := layout.Dirs()
	if len(dirs) != 9 {
		t.Fatalf("Dirs() returned %d entries, want 9", len(dirs))
	}
	if dirs[0] != layout.Root {
		t.Errorf("first directory should be the run root, got %s", dirs[0])
	}
	for _, d := range dirs {
		if !strings.HasPrefix(d, wantRoot) {
			t.Errorf("%s is outside the run root", d)
		}
	}
}
