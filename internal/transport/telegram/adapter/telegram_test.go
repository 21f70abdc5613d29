package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "burgerbot/internal/transport"
)

func TestClassifySendError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		gone bool
	}{
		{"blocked sentinel", tele.ErrBlockedByUser, true},
		{"forbidden code", &tele.Error{Code: 403, Description: "Forbidden: something"}, true},
		{"deactivated text", errors.New("telegram: Forbidden: user is deactivated (403)"), true},
		{"chat not found", errors.New("telegram: Bad Request: chat not found (400)"), true},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"flood", &tele.Error{Code: 429, Description: "Too Many Requests"}, false},
	}
	for _, tc := range cases {
		got := classifySendError(tc.err)
		if errors.Is(got, kit.ErrRecipientGone) != tc.gone {
			t.Fatalf("%s: gone=%v want %v (err=%v)", tc.name, !tc.gone, tc.gone, got)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: original error must stay in the chain", tc.name)
		}
	}
	if classifySendError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text: %q", got)
	}

	lines := strings.Repeat("0123456789\n", 10)
	chunks := splitTelegramText(lines, 25, "")
	for _, c := range chunks {
		if len([]rune(c)) > 25 {
			t.Fatalf("chunk too long: %q", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps newline edges: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != strings.TrimRight(lines, "\n") {
		t.Fatalf("chunks lost content: %q", chunks)
	}

	html := strings.Repeat("x", 18) + "<b>bold</b>"
	hc := splitTelegramText(html, 20, "HTML")
	if hc[0] != strings.Repeat("x", 18) {
		t.Fatalf("html split inside tag: %q", hc)
	}
}
