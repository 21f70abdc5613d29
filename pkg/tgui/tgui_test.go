package tgui

import "testing"

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()

	got := New().
		Title("available services:").
		Item("120686", "Anmeldung <Berlin>").
		Line("see", Link("here", "https://example.org/?a=1&b=2")).
		Blank().
		KV("egress", Code("direct")).
		String()

	want := "<b>available services:</b>\n" +
		"120686 - Anmeldung &lt;Berlin&gt;\n" +
		`see <a href="https://example.org/?a=1&amp;b=2">here</a>` + "\n" +
		"\n" +
		"<b>egress:</b> <code>direct</code>"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestConcatKeepsParts(t *testing.T) {
	t.Parallel()

	got := Concat(Esc("a & b, "), Link("here", "https://x.example/?q=1&r=2"), Esc(" <end>")).String()
	want := `a &amp; b, <a href="https://x.example/?q=1&amp;r=2">here</a> &lt;end&gt;`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"Einbürgerung", 5, "Einbü…"},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
