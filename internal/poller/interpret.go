package poller

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"burgerbot/internal/slots"
)

const (
	bookableSelector    = "td.buchbar"
	notBookableSelector = "td.nichtbuchbar"
)

// StatusRateLimited is what the booking site answers when it throttles us.
const StatusRateLimited = http.StatusPreconditionRequired // 428

// Verdict is the interpretation of one fetched page.
type Verdict struct {
	Slots []slots.Slot
	Kind  slots.StatusKind
	// ToggleEgress asks the engine to flip the egress route.
	ToggleEgress bool
	// Cooldown asks the engine to pause the whole cycle.
	Cooldown bool
}

// Interpret classifies a page from its status code and the two cell markers.
// A bookable cell without a link, or a page with neither marker, is a
// ParseError: the route is likely serving something other than the booking
// page.
func Interpret(service slots.ServiceID, body []byte, status int) Verdict {
	if status == StatusRateLimited {
		return Verdict{Kind: slots.RateLimited, ToggleEgress: true, Cooldown: true}
	}
	parseError := Verdict{Kind: slots.ParseError, ToggleEgress: true}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return parseError
	}
	bookable := doc.Find(bookableSelector)
	notBookable := doc.Find(notBookableSelector).Length()

	switch {
	case bookable.Length() == 0 && notBookable > 0:
		return Verdict{Kind: slots.ValidNoSlots}
	case bookable.Length() == 0:
		return parseError
	}

	found := make([]slots.Slot, 0, bookable.Length())
	ok := true
	bookable.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		href, exists := cell.Find("a").First().Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			ok = false
			return false
		}
		found = append(found, slots.Slot{ID: strings.TrimSpace(href), Service: service})
		return true
	})
	if !ok {
		return parseError
	}
	return Verdict{Slots: found, Kind: slots.SlotsFound}
}
