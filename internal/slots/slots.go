// Package slots defines the values that flow from the poller to the
// notifier: service ids, slot tokens and per-service poll status.
package slots

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// ServiceID identifies a bookable service category on the booking site.
type ServiceID int

func (id ServiceID) String() string { return strconv.Itoa(int(id)) }

// ParseServiceID parses a decimal service id as typed by a user.
func ParseServiceID(s string) (ServiceID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid service id %q", s)
	}
	return ServiceID(n), nil
}

// Slot is one bookable cell seen during a poll cycle. ID is the raw href
// token and doubles as the dedup key.
type Slot struct {
	ID      string
	Service ServiceID
}

type StatusKind int

const (
	NoneYet StatusKind = iota
	SlotsFound
	ValidNoSlots
	ConnectionIssue
	RateLimited
	ParseError
)

var statusText = map[StatusKind]string{
	NoneYet:         "No last status",
	SlotsFound:      "Slots found",
	ValidNoSlots:    "Page is valid, but no slots found",
	ConnectionIssue: "Connection issue",
	RateLimited:     "Rate limited",
	ParseError:      "Page could not be parsed",
}

func (k StatusKind) String() string {
	if s, ok := statusText[k]; ok {
		return s
	}
	return "StatusKind(" + strconv.Itoa(int(k)) + ")"
}

// Label is the short lowercase form used for metrics and JSON.
func (k StatusKind) Label() string {
	switch k {
	case SlotsFound:
		return "slots_found"
	case ValidNoSlots:
		return "valid_no_slots"
	case ConnectionIssue:
		return "connection_issue"
	case RateLimited:
		return "rate_limited"
	case ParseError:
		return "parse_error"
	default:
		return "none_yet"
	}
}

func (k StatusKind) MarshalText() ([]byte, error) { return []byte(k.Label()), nil }

// PollStatus is the latest outcome for one service.
type PollStatus struct {
	At   time.Time  `json:"at"`
	Kind StatusKind `json:"kind"`
}

var ErrNoDate = errors.New("slot token carries no date")

var berlin = loadBerlin()

func loadBerlin() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}

// DateOf extracts the day a slot token points at. The date is the
// second-to-last path segment: either YYYYMMDD or unix seconds. The result
// is in Europe/Berlin.
func DateOf(token string) (time.Time, error) {
	parts := strings.Split(token, "/")
	if len(parts) < 2 {
		return time.Time{}, ErrNoDate
	}
	seg := parts[len(parts)-2]
	if len(seg) == 8 {
		if t, err := time.ParseInLocation("20060102", seg, berlin); err == nil {
			return t, nil
		}
	}
	n, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoDate, seg)
	}
	return time.Unix(n, 0).In(berlin), nil
}

// DisplayDate renders the slot day as "02 January", falling back to a
// neutral phrase when the token has no readable date.
func DisplayDate(token string) string {
	t, err := DateOf(token)
	if err != nil {
		return "an upcoming day"
	}
	return t.Format("02 January")
}
