package catalog

import (
	"net/url"
	"strings"
	"testing"
)

func TestURL(t *testing.T) {
	t.Parallel()

	c := New("", nil)

	u := c.URL(120686)
	if !strings.HasPrefix(u, "https://service.berlin.de/terminvereinbarung/termin/tag.php?") {
		t.Fatalf("prefix: %s", u)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("anliegen[]") != "120686" || q.Get("termin") != "0" {
		t.Fatalf("query=%v", q)
	}
	if !strings.Contains(u, "anliegen[]=120686") || !strings.Contains(u, "dienstleisterlist=122210,122217,") {
		t.Fatalf("brackets and commas must stay literal: %s", u)
	}

	ua, _ := url.Parse(c.URL(UkraineServiceID))
	if ua.Query().Get("dienstleister") != "330857" || ua.Query().Get("anliegen[]") != "330869" || ua.Query().Get("termin") != "1" {
		t.Fatalf("special url=%s", ua)
	}
}

func TestCustomOriginAndEntries(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:8080/", []Entry{{ID: 120686, Name: "Registration"}, {ID: 7, Name: "Seven"}})
	if !strings.HasPrefix(c.URL(7), "http://127.0.0.1:8080/terminvereinbarung/") {
		t.Fatalf("origin not applied: %s", c.URL(7))
	}
	if c.Name(120686) != "Registration" || !c.Known(7) || c.Known(8) || c.Name(8) != "8" {
		t.Fatalf("entries not merged")
	}
	all := c.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All not sorted: %v", all)
		}
	}
	if all[0].ID != UkraineServiceID {
		t.Fatalf("first=%v", all[0])
	}
}
