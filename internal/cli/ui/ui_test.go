package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "Field", "Type", "Default")
	table.AddRow("age", "integer", "100")
	table.AddRow("ssn", "object")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Field  Type     Default" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "─────") {
		t.Errorf("expected separator, got %q", lines[1])
	}
	if lines[2] != "age    integer  100" {
		t.Errorf("unexpected row %q", lines[2])
	}
	if lines[3] != "ssn    object" {
		t.Errorf("unexpected short row %q", lines[3])
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", table.Len())
	}
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	if buf.Len() != 0 {
		t.Errorf("expected no output without headers, got %q", buf.String())
	}
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Type", "Doctor")
	kv.AddRow("Collection", "Person")
	kv.Render()

	want := "Type:       Doctor\nCollection: Person\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestMessage(t *testing.T) {
	out := UnknownType("Persn", []string{"Person", "Post", "Preference"}, true).Format()

	for _, want := range []string{"UNKNOWN DOCUMENT TYPE: Persn", "Did you mean: Person", "→ List types: odm schema"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	warn := Message{Warning: true, Problem: "no snapshots retained", NoColor: true}.Format()
	if warn != "! no snapshots retained\n" {
		t.Errorf("unexpected warning %q", warn)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"Person", "Persn", 1},
		{"Doctor", "Dcotor", 2},
	}
	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, got, tt.want)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"Person", "Post", "Preference", "Game"}

	got := FindSimilar("post", candidates, DefaultMaxDistance, DefaultMaxSuggestions)
	if len(got) == 0 || got[0] != "Post" {
		t.Errorf("expected Post first, got %v", got)
	}
	if got := FindSimilar("zzzzzzzz", candidates, DefaultMaxDistance, DefaultMaxSuggestions); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
	if got := FindSimilar("Pos", candidates, 10, 2); len(got) != 2 {
		t.Errorf("expected the limit to apply, got %v", got)
	}
}
