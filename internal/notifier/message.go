package notifier

import (
	"burgerbot/internal/catalog"
	"burgerbot/internal/slots"
	"burgerbot/pkg/tgui"
)

// Message renders the announcement for s as Telegram HTML.
func Message(cat *catalog.Catalog, s slots.Slot) string {
	return tgui.Concat(
		tgui.Esc("There are slots on "+slots.DisplayDate(s.ID)+" available for booking for "+cat.Name(s.Service)+", click "),
		tgui.Link("here", cat.URL(s.Service)),
		tgui.Esc(" to check it out"),
	).String()
}
