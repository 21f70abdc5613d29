package slots

import (
	"errors"
	"testing"
)

func TestDisplayDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		token string
		want  string
	}{
		{"/terminvereinbarung/termin/time/20231015/", "15 October"},
		{"https://service.berlin.de/terminvereinbarung/termin/time/1697320800/", "15 October"},
		{"nothing-here", "an upcoming day"},
		{"/a/b/", "an upcoming day"},
	}
	for _, tc := range cases {
		if got := DisplayDate(tc.token); got != tc.want {
			t.Fatalf("DisplayDate(%q)=%q want %q", tc.token, got, tc.want)
		}
	}
}

func TestDateOfErrors(t *testing.T) {
	t.Parallel()

	if _, err := DateOf("x"); !errors.Is(err, ErrNoDate) {
		t.Fatalf("err=%v", err)
	}
	if _, err := DateOf("/time/-5/"); !errors.Is(err, ErrNoDate) {
		t.Fatalf("negative ts should fail: %v", err)
	}
}

func TestParseServiceID(t *testing.T) {
	t.Parallel()

	id, err := ParseServiceID(" 120686 ")
	if err != nil || id != 120686 {
		t.Fatalf("id=%v err=%v", id, err)
	}
	if _, err := ParseServiceID("abc"); err == nil {
		t.Fatalf("expected error")
	}
	if id, _ := ParseServiceID("-2"); id.String() != "-2" {
		t.Fatalf("String=%q", id.String())
	}
}

func TestStatusKindText(t *testing.T) {
	t.Parallel()

	if NoneYet.String() != "No last status" || RateLimited.Label() != "rate_limited" {
		t.Fatalf("unexpected text")
	}
	b, _ := ValidNoSlots.MarshalText()
	if string(b) != "valid_no_slots" {
		t.Fatalf("MarshalText=%s", b)
	}
}
