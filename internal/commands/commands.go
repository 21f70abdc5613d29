// Package commands implements the chat commands users manage their
// subscriptions with.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"burgerbot/internal/catalog"
	"burgerbot/internal/notifier"
	"burgerbot/internal/poller"
	"burgerbot/internal/slots"
	"burgerbot/internal/subscribers"
	"burgerbot/internal/task/scheduler"
	"burgerbot/internal/transport/telegram/router"
	logx "burgerbot/pkg/logx"
	"burgerbot/pkg/tgui"
)

const (
	addUsage    = "Failed to add service, have you specified the service id?"
	removeUsage = "Failed to remove service, have you specified the service id?"
)

// Watcher is the poller's watch set as the commands see it. Membership is
// changed by the subscriber registry it is bound to, never by a handler.
type Watcher interface {
	Services() []slots.ServiceID
	Status(id slots.ServiceID) slots.PollStatus
	Egress() poller.EgressMode
}

type CycleReporter interface {
	LastCycle() scheduler.CycleSummary
	Next() time.Time
}

type Deps struct {
	Catalog     *catalog.Catalog
	Subscribers *subscribers.Registry
	Watcher     Watcher

	// Optional, used by /health.
	Cycles   CycleReporter
	Dedup    interface{ Len() int }
	Notifier interface{ Stats() notifier.Stats }

	// Location formats /last_status times. Default time.Local.
	Location *time.Location
	Started  time.Time
	Log      logx.Logger
}

type handlers struct {
	Deps
}

// Commands returns the router registry. /help is added by the router.
func Commands(d Deps) []router.Command {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	h := &handlers{Deps: d}
	return []router.Command{
		{Name: "start", Description: "start the bot", Handle: h.start},
		{Name: "stop", Description: "stop the bot", Handle: h.stop},
		{Name: "add_service", Usage: "<service_id>", Description: "add service to your list", Handle: h.addService},
		{Name: "remove_service", Usage: "<service_id>", Description: "remove service from your list", Handle: h.removeService},
		{Name: "services", Description: "list of available services", Handle: h.services},
		{Name: "my_services", Description: "list of services being polled for", Handle: h.myServices},
		{Name: "last_status", Description: "displays the status of the last poll", Handle: h.lastStatus},
		{Name: "health", Description: "runtime health", Access: router.AccessOwnerOnly, Handle: h.health},
	}
}

func (h *handlers) start(ctx context.Context, req *router.Request) error {
	created, err := h.Subscribers.Add(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if created {
		req.Logger.Info("new chat registered")
	}
	return req.Reply(ctx, tgui.New().
		Line("Welcome to BurgerBot").
		Line("For a list of commands - type /help").
		Line("To stop - type /stop").
		String())
}

func (h *handlers) stop(ctx context.Context, req *router.Request) error {
	if _, err := h.Subscribers.Remove(ctx, req.Chat.ChatID, subscribers.ActionStop); err != nil {
		return err
	}
	return req.Reply(ctx, "thanks for using me")
}

func parseServiceArg(args []string) (slots.ServiceID, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := slots.ParseServiceID(args[0])
	return id, err == nil
}

func (h *handlers) addService(ctx context.Context, req *router.Request) error {
	id, ok := parseServiceArg(req.Args)
	if !ok {
		return req.Reply(ctx, addUsage)
	}
	if _, err := h.Subscribers.Add(ctx, req.Chat.ChatID); err != nil {
		return err
	}
	_, err := h.Subscribers.Subscribe(ctx, req.Chat.ChatID, id)
	switch {
	case errors.Is(err, subscribers.ErrUnknownService):
		req.Logger.Info("unknown service requested", logx.Int("service", int(id)))
		return req.Reply(ctx, addUsage)
	case err != nil:
		return err
	}
	return req.Reply(ctx, tgui.Esc(h.Catalog.Name(id)+" added").String())
}

func (h *handlers) removeService(ctx context.Context, req *router.Request) error {
	id, ok := parseServiceArg(req.Args)
	if !ok || !h.Catalog.Known(id) {
		return req.Reply(ctx, removeUsage)
	}
	if _, err := h.Subscribers.Unsubscribe(ctx, req.Chat.ChatID, id); err != nil && !errors.Is(err, subscribers.ErrNotRegistered) {
		return err
	}
	return req.Reply(ctx, tgui.Esc(h.Catalog.Name(id)+" removed").String())
}

func (h *handlers) services(ctx context.Context, req *router.Request) error {
	b := tgui.New().Line("available services:")
	for _, e := range h.Catalog.All() {
		b.Item(e.ID.String(), e.Name)
	}
	return req.Reply(ctx, b.String())
}

func (h *handlers) myServices(ctx context.Context, req *router.Request) error {
	b := tgui.New().Line("currently polling for:")
	for _, id := range h.Subscribers.ServicesOf(req.Chat.ChatID) {
		b.Item(id.String(), h.Catalog.Name(id))
	}
	return req.Reply(ctx, b.String())
}

func (h *handlers) lastStatus(ctx context.Context, req *router.Request) error {
	b := tgui.New().Line("last statuses for your selected services:")
	for _, id := range h.Subscribers.ServicesOf(req.Chat.ChatID) {
		st := h.Watcher.Status(id)
		b.Line(fmt.Sprintf("%s - %s - %s", id, st.At.In(h.Location).Format(time.ANSIC), st.Kind))
	}
	return req.Reply(ctx, b.String())
}

func (h *handlers) health(ctx context.Context, req *router.Request) error {
	watch := h.Watcher.Services()
	ids := make([]string, 0, len(watch))
	for _, id := range watch {
		ids = append(ids, id.String())
	}

	b := tgui.New().Title("BurgerBot health").
		KV("uptime", tgui.Esc(time.Since(h.Started).Truncate(time.Second).String())).
		KV("egress", tgui.Code(h.Watcher.Egress().String())).
		KV("watching", tgui.Esc(fmt.Sprintf("%d %v", len(ids), ids))).
		KV("subscribers", tgui.Esc(strconv.Itoa(h.Subscribers.Count())))
	if h.Dedup != nil {
		b.KV("dedup entries", tgui.Esc(strconv.Itoa(h.Dedup.Len())))
	}
	if h.Cycles != nil {
		if last := h.Cycles.LastCycle(); last.ID != "" {
			b.Blank().Title("last cycle").
				KV("finished", tgui.Esc(last.Finished.In(h.Location).Format(time.DateTime))).
				KV("took", tgui.Esc(last.Took.Truncate(time.Millisecond).String())).
				KV("found", tgui.Esc(fmt.Sprintf("%d (new %d, notified %d)", last.Found, last.New, last.Notified)))
			if last.Err != "" {
				b.KV("error", tgui.Esc(tgui.TruncRunes(last.Err, 200)))
			}
		}
		if next := h.Cycles.Next(); !next.IsZero() {
			b.KV("next", tgui.Esc(next.In(h.Location).Format(time.DateTime)))
		}
	}
	if h.Notifier != nil {
		st := h.Notifier.Stats()
		b.Blank().Title("notifier").
			KV("breaker", tgui.Code(st.Breaker)).
			KV("sent", tgui.Esc(fmt.Sprintf("%d (gone %d, failed %d, dropped %d)", st.Sent, st.Gone, st.Failed, st.Dropped)))
	}
	return req.Reply(ctx, b.String())
}
