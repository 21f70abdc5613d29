// Package scheduler drives poll cycles.
//
// A Runner executes one cycle (poll, dedup, deliver) and then sleeps until
// the schedule's next time after the cycle ended, so a long cycle (for
// example one that ran into the rate-limit cooldown) never overlaps the next.
package scheduler
