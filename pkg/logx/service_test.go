package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("ValidLevel(loud) should be false")
	}
	if !ValidLevel("") || !ValidLevel("info") {
		t.Fatalf("ValidLevel should accept empty and known levels")
	}
}

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()

	got := formatTelegramLine([]byte(`{"level":"warn","time":"x","message":"poll failed","service":120686,"caller":"engine.go:10"}` + "\n"))
	want := "[WARN] poll failed\n- caller=engine.go:10\n- service=120686"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	raw := formatTelegramLine([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("raw=%q", raw)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 20)
	if got := truncate(s, 12); got != strings.Repeat("a", 9)+"..." {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate(s, 50); got != s {
		t.Fatalf("short strings must pass through")
	}
}
