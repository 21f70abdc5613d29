// Package catalog maps service ids to names and booking-page URLs.
package catalog

import (
	"net/url"
	"sort"
	"strings"

	"burgerbot/internal/slots"
)

const (
	DefaultOrigin = "https://service.berlin.de"

	// UkraineServiceID has its own provider and a fixed booking URL.
	UkraineServiceID slots.ServiceID = -2

	bookingPath = "/terminvereinbarung/termin/tag.php"
)

// providers is the fixed dienstleisterlist sent with every templated query.
const providers = "122210,122217,327316,122219,327312,122227,327314,122231,327346,122243,327348,122252,329742,122260,329745,122262,329748,122254,329751,122271,327278,122273,327274,122277,327276,330436,122280,327294,122282,327290,122284,327292,327539,122291,327270,122285,327266,122286,327264,122296,327268,150230,329760,122301,327282,122297,327286,122294,327284,122312,329763,122314,329775,122304,327330,122311,327334,122309,327332,122281,327352,122279,329772,122276,327324,122274,327326,122267,329766,122246,327318,122251,327320,122257,327322,122208,327298,122226,327300"

var builtin = map[slots.ServiceID]string{
	120686:           "Anmeldung",
	120680:           "Beglaubigungen",
	120701:           "Personalausweis beantragen",
	121151:           "Reisepass beantragen",
	121921:           "Gewerbeanmeldung",
	327537:           "Fahrerlaubnis - Umschreibung einer ausländischen",
	324280:           "Niederlassungserlaubnis oder Erlaubnis",
	318998:           "Einbürgerung - Verleihung der deutschen Staatsangehörigkeit beantragen",
	121591:           "Führerschein - Internationalen Führerschein beantragen",
	UkraineServiceID: "Aufenthaltserlaubnis für Geflüchtete aus der Ukraine",
}

type Entry struct {
	ID   slots.ServiceID
	Name string
}

// Catalog is immutable after New and safe for concurrent use.
type Catalog struct {
	origin string
	names  map[slots.ServiceID]string
}

// New builds a catalog from the built-in services plus extra, which may add
// or rename entries. An empty origin means the public booking site.
func New(origin string, extra []Entry) *Catalog {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	names := make(map[slots.ServiceID]string, len(builtin)+len(extra))
	for id, n := range builtin {
		names[id] = n
	}
	for _, e := range extra {
		names[e.ID] = e.Name
	}
	return &Catalog{origin: origin, names: names}
}

func (c *Catalog) Known(id slots.ServiceID) bool {
	_, ok := c.names[id]
	return ok
}

// Name returns the service name, or the bare id for unknown services.
func (c *Catalog) Name(id slots.ServiceID) string {
	if n, ok := c.names[id]; ok {
		return n
	}
	return id.String()
}

// All lists the catalog sorted by id.
func (c *Catalog) All() []Entry {
	out := make([]Entry, 0, len(c.names))
	for id, n := range c.names {
		out = append(out, Entry{ID: id, Name: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// URL is the availability page polled for id.
func (c *Catalog) URL(id slots.ServiceID) string {
	q := url.Values{}
	if id == UkraineServiceID {
		q.Set("termin", "1")
		q.Set("dienstleister", "330857")
		q.Set("anliegen[]", "330869")
		q.Set("herkunft", "1")
	} else {
		q.Set("termin", "0")
		q.Set("anliegen[]", id.String())
		q.Set("dienstleisterlist", providers)
		q.Set("herkunft", "http://service.berlin.de/dienstleistung/120686/")
	}
	return c.origin + bookingPath + "?" + encode(q)
}

// encode is url.Values.Encode without escaping the brackets and commas the
// booking site expects literally.
func encode(q url.Values) string {
	s := q.Encode()
	return strings.NewReplacer("%5B", "[", "%5D", "]", "%2C", ",").Replace(s)
}
