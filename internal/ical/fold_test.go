package ical

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFoldShortLineUnchanged(t *testing.T) {
	line := "SUMMARY:Buy milk"
	if got := Fold(line); got != line {
		t.Errorf("Fold(%q) = %q", line, got)
	}
}

func TestFoldLimits(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"ascii", "DESCRIPTION:" + strings.Repeat("abcdefghij", 30)},
		{"two-byte", "SUMMARY:" + strings.Repeat("é", 120)},
		{"four-byte", "SUMMARY:" + strings.Repeat("😀", 60)},
		{"mixed", "SUMMARY:" + strings.Repeat("aé😀", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folded := Fold(tt.line)
			physical := strings.Split(folded, "\r\n")
			if len(physical) < 2 {
				t.Fatalf("expected line to be folded, got %d line(s)", len(physical))
			}
			for i, pl := range physical {
				if len(pl) > maxLineOctets {
					t.Errorf("line %d has %d octets", i, len(pl))
				}
				if !utf8.ValidString(pl) {
					t.Errorf("line %d splits a UTF-8 sequence: %q", i, pl)
				}
				if i > 0 && !strings.HasPrefix(pl, " ") {
					t.Errorf("continuation line %d does not start with a space", i)
				}
			}
			if got := Unfold(folded); got != tt.line {
				t.Errorf("Unfold(Fold(x)) != x\n got: %q\nwant: %q", got, tt.line)
			}
		})
	}
}

func TestUnfoldAcceptsLFAndTab(t *testing.T) {
	in := "SUMMARY:Hello\n  World\r\n\t again\r\nUID:1"
	want := "SUMMARY:Hello World again\r\nUID:1"
	if got := Unfold(in); got != want {
		t.Errorf("Unfold = %q, want %q", got, want)
	}
}

func TestEscapeText(t *testing.T) {
	in := "a, b; c\\d\ne"
	want := `a\, b\; c\\d\ne`
	if got := EscapeText(in); got != want {
		t.Fatalf("EscapeText = %q, want %q", got, want)
	}
	if got := UnescapeText(want); got != in {
		t.Errorf("UnescapeText = %q, want %q", got, in)
	}
	if got := UnescapeText(`line\Nbreak`); got != "line\nbreak" {
		t.Errorf("UnescapeText uppercase N = %q", got)
	}
}

func TestSplitEscaped(t *testing.T) {
	got := splitEscaped(`work,a\,b,home`, ',')
	want := []string{"work", "a,b", "home"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"-PT15M", "-15m0s", false},
		{"PT1H30M", "1h30m0s", false},
		{"P1D", "24h0m0s", false},
		{"P1W", "168h0m0s", false},
		{"+P1DT2H", "26h0m0s", false},
		{"P", "", true},
		{"PT", "", true},
		{"15M", "", true},
	}

	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDuration(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
