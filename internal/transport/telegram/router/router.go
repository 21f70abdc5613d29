// Package router turns incoming chat messages into command handler calls.
//
// Updates are parsed on the dispatch goroutine and executed on a bounded
// worker pool, each wrapped in panic recovery, request logging and a
// timeout.
package router

import (
	"context"
	"html"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rtsup "burgerbot/internal/runtime/supervisor"
	kit "burgerbot/internal/transport"
	logx "burgerbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Usage is shown in /help after the command name, e.g. "<service_id>".
	Usage  string
	Access Access
	// Timeout overrides Options.Timeout.
	Timeout time.Duration
	Handle  HandlerFunc
}

// Sender is the outbound half of a chat adapter.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Request struct {
	Message kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Owner   bool
	Logger  logx.Logger

	sender  Sender
	replied atomic.Bool
}

// Reply sends HTML text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	r.replied.Store(true)
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Owners    []int64
}

type Router struct {
	log    logx.Logger
	sender Sender

	mu       sync.RWMutex
	cmds     []Command
	byName   map[string]int
	owners   []int64
	timeout  time.Duration
	unknown  string
	failText string

	workers int
	jobs    chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(log logx.Logger, sender Sender, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	return &Router{
		log:      log.With(logx.String("comp", "telegram.router")),
		sender:   sender,
		byName:   map[string]int{},
		owners:   append([]int64(nil), opt.Owners...),
		timeout:  opt.Timeout,
		unknown:  "Unknown command. Type /help for the list of commands.",
		failText: "Something went wrong, please try again later.",
		workers:  opt.Workers,
		jobs:     make(chan func(), opt.QueueSize),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// SetOwners updates the owner list. Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetCommands replaces the registry. /help is always added.
func (r *Router) SetCommands(cmds []Command) {
	help := Command{
		Name:        "help",
		Description: "list the commands",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.HelpText(req.Owner))
		},
	}
	all := append(append([]Command(nil), cmds...), help)

	byName := make(map[string]int, len(all))
	kept := make([]Command, 0, len(all))
	for _, c := range all {
		name := sanitizeCommandName(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[name]; dup {
			r.log.Warn("duplicate command ignored", logx.String("cmd", name))
			continue
		}
		c.Name = name
		byName[name] = len(kept)
		for _, a := range c.Aliases {
			if a = sanitizeCommandName(a); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = len(kept)
				}
			}
		}
		kept = append(kept, c)
	}

	r.mu.Lock()
	r.cmds = kept
	r.byName = byName
	r.mu.Unlock()
}

// PublishMenu pushes the public commands to the platform's command menu
// when the sender supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	r.mu.RLock()
	menu := menuCommands(r.cmds)
	r.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

func (r *Router) lookup(name string) (Command, time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return Command{}, 0, false
	}
	return r.cmds[i], r.timeout, true
}

// tryEnqueue is panic-safe against the jobs channel being closed.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		r.setSupervisor(sup, false)
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route parses one update and queues its handler. Non-command text is
// ignored.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	run := r.prepare(ctx, up)
	if run == nil {
		return
	}
	if !r.tryEnqueue(func() { _ = run() }) {
		msg := up.Message
		_, _ = r.sender.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "Busy, try again in a moment.", nil)
	}
}

// Exec runs the command in up on the calling goroutine and returns the
// handler's error.
func (r *Router) Exec(ctx context.Context, up kit.Update) error {
	if run := r.prepare(ctx, up); run != nil {
		return run()
	}
	return nil
}

// prepare resolves the command and returns its wrapped invocation, or nil
// when there is nothing to run. Unknown commands are answered here.
func (r *Router) prepare(ctx context.Context, up kit.Update) func() error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	parts := tokenize(msg.Text)
	if len(parts) == 0 {
		return nil
	}
	word, ok := commandWord(parts[0])
	if !ok {
		return nil
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd, timeout, found := r.lookup(word)
	owner := r.isOwner(msg.FromID)
	if !found || (cmd.Access == AccessOwnerOnly && !owner) {
		// owner-only commands are invisible to everyone else
		_, _ = r.sender.SendText(ctx, chat, r.unknown, nil)
		return nil
	}
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Message: *msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Owner:   owner,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		),
		sender: r.sender,
	}

	final := Chain(
		cmd.Handle,
		MWReplyOnError(r.failText),
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return func() error { return final(ctx, req) }
}

// HelpText renders the command list. Owner-only commands are listed for
// owners only.
func (r *Router) HelpText(owner bool) string {
	r.mu.RLock()
	cmds := append([]Command(nil), r.cmds...)
	r.mu.RUnlock()

	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		line := "/" + c.Name
		if u := strings.TrimSpace(c.Usage); u != "" {
			line += " " + html.EscapeString(u)
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
