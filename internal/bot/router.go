// Package bot routes incoming Telegram commands to handlers and implements
// the full command surface of the schedule bot.
package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	supervisor "github.com/leetk321/KTU-GG-Alert-v2/internal/runtime/supervisor"
	kit "github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Msg     kit.Message
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Adapter.SendText(ctx, kit.ChatTarget{ChatID: r.Msg.ChatID}, text, nil)
}

// AdminChecker reports whether a chat holds admin rights.
type AdminChecker interface {
	IsAdmin(chatID int64) bool
}

// Router dispatches updates to registered commands through a bounded worker
// pool. Non-command text goes to the fallback handler, which drives the
// admin registration conversation.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	admins  AdminChecker

	mu       sync.RWMutex
	commands map[string]Command
	fallback HandlerFunc
	mw       []Middleware

	jobs chan func()
}

func NewRouter(log logx.Logger, adapter kit.Adapter, admins AdminChecker) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:      log.With(logx.String("component", "router")),
		adapter:  adapter,
		admins:   admins,
		commands: map[string]Command{},
		jobs:     make(chan func(), 256),
	}
}

func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	r.mw = append(r.mw, mw...)
	r.mu.Unlock()
}

func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		r.commands[name] = c
	}
	r.mu.Unlock()
}

// SetFallback installs the handler for plain (non-command) text.
func (r *Router) SetFallback(h HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// DispatchLoop consumes updates until ctx is cancelled or the channel
// closes. Handlers run on a fixed worker pool so one slow command cannot
// stall the rest.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)

	var closeOnce sync.Once
	closeJobs := func() { closeOnce.Do(func() { close(r.jobs) }) }

	for i := 0; i < workers; i++ {
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
					if job == nil {
						continue
					}
					// Middleware already recovers; keep the worker alive
					// even if something slips through.
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job",
									logx.Any("panic", rec),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
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
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := *up.Message
	text := strings.TrimSpace(msg.Text)

	name, args, isCmd := parseCommand(text)

	r.mu.RLock()
	var handler HandlerFunc
	var cmd Command
	var found bool
	if isCmd {
		cmd, found = r.commands[name]
		if found {
			handler = cmd.Handle
		}
	} else {
		handler = r.fallback
	}
	mw := append([]Middleware(nil), r.mw...)
	r.mu.RUnlock()

	if isCmd && !found {
		// Unknown commands behave like plain text so the fallback can show
		// usage hints in private chats.
		r.mu.RLock()
		handler = r.fallback
		r.mu.RUnlock()
	}
	if handler == nil {
		return
	}

	req := &Request{
		Msg:     msg,
		Command: name,
		Args:    args,
		Adapter: r.adapter,
		Logger:  r.log.With(logx.Int64("chat_id", msg.ChatID), logx.String("cmd", name)),
	}

	if found && cmd.Access == AccessAdminOnly && !r.admins.IsAdmin(msg.ChatID) {
		enqueueCtx := ctx
		r.enqueue(func() {
			_ = req.Reply(enqueueCtx, "❌ 관리 권한이 필요한 기능입니다.")
		})
		return
	}

	chain := Chain(handler, mw...)
	if found && cmd.Timeout > 0 {
		chain = Chain(chain, MWTimeout(cmd.Timeout))
	}

	if !r.enqueue(func() { _ = chain(ctx, req) }) {
		r.log.Warn("command queue full, dropping update",
			logx.Int64("chat_id", msg.ChatID), logx.String("cmd", name))
	}
}

func (r *Router) enqueue(fn func()) (ok bool) {
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

// parseCommand splits "/cmd@bot arg1 arg2" into its command name and args.
// ok is false for plain text.
func parseCommand(text string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
