package poller

import (
	"testing"

	"burgerbot/internal/slots"
)

const (
	pageNoSlots = `<html><body><table><tr>
<td class="nichtbuchbar">1</td><td class="nichtbuchbar">2</td>
</tr></table></body></html>`

	pageTwoSlots = `<html><body><table><tr>
<td class="nichtbuchbar">1</td>
<td class="buchbar"><a href="/terminvereinbarung/termin/time/20231015/">15</a></td>
<td class="buchbar"><a href="/terminvereinbarung/termin/time/20231016/">16</a></td>
</tr></table></body></html>`

	pageOnlyBookable = `<table><tr><td class="buchbar"><a href="/t/20231020/">20</a></td></tr></table>`

	pageMissingHref = `<table><tr><td class="nichtbuchbar">1</td><td class="buchbar"><span>15</span></td></tr></table>`

	pageDecoy = `<html><body><h1>Bitte warten</h1></body></html>`
)

func TestInterpret(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     string
		status   int
		kind     slots.StatusKind
		ids      []string
		toggle   bool
		cooldown bool
	}{
		{name: "only not bookable", body: pageNoSlots, status: 200, kind: slots.ValidNoSlots},
		{name: "both markers", body: pageTwoSlots, status: 200, kind: slots.SlotsFound,
			ids: []string{"/terminvereinbarung/termin/time/20231015/", "/terminvereinbarung/termin/time/20231016/"}},
		{name: "bookable only", body: pageOnlyBookable, status: 200, kind: slots.SlotsFound, ids: []string{"/t/20231020/"}},
		{name: "rate limited", body: pageTwoSlots, status: 428, kind: slots.RateLimited, toggle: true, cooldown: true},
		{name: "missing href", body: pageMissingHref, status: 200, kind: slots.ParseError, toggle: true},
		{name: "decoy page", body: pageDecoy, status: 200, kind: slots.ParseError, toggle: true},
		{name: "empty body", body: "", status: 503, kind: slots.ParseError, toggle: true},
	}
	for _, tc := range cases {
		v := Interpret(120686, []byte(tc.body), tc.status)
		if v.Kind != tc.kind || v.ToggleEgress != tc.toggle || v.Cooldown != tc.cooldown {
			t.Fatalf("%s: got %+v", tc.name, v)
		}
		if len(v.Slots) != len(tc.ids) {
			t.Fatalf("%s: slots=%v want %v", tc.name, v.Slots, tc.ids)
		}
		for i, want := range tc.ids {
			if v.Slots[i].ID != want || v.Slots[i].Service != 120686 {
				t.Fatalf("%s: slot[%d]=%+v want id %q", tc.name, i, v.Slots[i], want)
			}
		}
	}
}
