// Package poller checks the booking site for open slots.
//
// Transport fetches a service page over the current egress route, Interpret
// turns the page into a Verdict, and Engine runs both across the watch set
// once per cycle while keeping the last status per service. Engine owns the
// only mutable state shared with the chat commands, behind one lock.
package poller
