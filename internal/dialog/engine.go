// Package dialog implements the menu-navigation dialogue engine.
//
// The engine is a small state machine over the menu cache: every inbound
// message is classified (greeting, command, numeric selection, fallback)
// in a fixed precedence order and mapped to the next navigation state
// plus one outbound text.
package dialog

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/comunidadegraca/atendebot/internal/menu"
	"github.com/comunidadegraca/atendebot/internal/models"
)

// Tracker records one interaction for analytics. Implementations must
// never block: the engine fires and forgets.
type Tracker interface {
	Track(phone, nodeID string)
}

// Result is the outcome of processing one inbound message. Message is
// empty only when processing was suppressed (duplicate delivery).
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// greetingWords reset the conversation when the message equals or
// contains any of them.
var greetingWords = []string{"oi", "olá", "ola", "hello", "hi", "bom dia", "boa tarde", "boa noite"}

var numericRe = regexp.MustCompile(`^\d+$`)

// Opts holds configuration options for the engine.
type Opts struct {
	Tracker Tracker
	Dedup   *DedupWindow
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithTracker sets the fire-and-forget analytics tracker.
func WithTracker(t Tracker) Option {
	return func(o *Opts) { o.Tracker = t }
}

// WithDedupWindow sets the inbound de-duplication window.
func WithDedupWindow(d *DedupWindow) Option {
	return func(o *Opts) { o.Dedup = d }
}

// Engine computes dialogue responses from the menu cache and per-phone
// conversation state.
type Engine struct {
	cache   *menu.Cache
	states  *States
	tracker Tracker
	dedup   *DedupWindow
}

// NewEngine creates a dialogue engine over the given cache and state
// container.
func NewEngine(cache *menu.Cache, states *States, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		cache:   cache,
		states:  states,
		tracker: cfg.Tracker,
		dedup:   cfg.Dedup,
	}
}

// ProcessMessage classifies one inbound message and returns the response
// text. It never returns an error or panics to the caller: any internal
// fault yields a generic apology and leaves state untouched.
func (e *Engine) ProcessMessage(ctx context.Context, phone, raw string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.ProcessMessage: recovered from panic", "phone", phone, "panic", r)
			res = Result{Success: true, Message: msgApology}
		}
	}()

	text := strings.ToLower(strings.TrimSpace(raw))
	slog.Debug("Engine.ProcessMessage: inbound", "phone", phone, "body_length", len(text))

	if e.dedup != nil && !e.dedup.Allow(phone, text) {
		return Result{Success: true}
	}

	st, exists := e.states.Get(phone)

	// First contact behaves as a greeting regardless of content.
	if !exists {
		return e.greet(phone)
	}

	switch {
	case isGreeting(text):
		return e.greet(phone)
	case text == "menu" || text == "#" || text == "0":
		e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelRoot})
		e.track(phone, "")
		return Result{Success: true, Message: renderRootMenu(e.cache.RootNodes())}
	case text == "voltar" || text == "back" || text == "<":
		return e.goBack(phone, st)
	case text == "sair" || text == "encerrar" || text == "15":
		e.states.Clear(phone)
		e.track(phone, "")
		return Result{Success: true, Message: msgFarewell}
	case numericRe.MatchString(text):
		return e.selectOption(phone, st, text)
	default:
		e.track(phone, "")
		return Result{Success: true, Message: helpFor(st.Level)}
	}
}

// greet resets the conversation to the main menu, discarding prior state.
func (e *Engine) greet(phone string) Result {
	e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelRoot})
	e.track(phone, "")
	return Result{Success: true, Message: renderGreeting(e.cache.RootNodes())}
}

// goBack moves one level up the hierarchy.
//
// From viewing_content: if the active node has no children the
// intermediate list would be empty, so navigation skips straight to the
// main menu; otherwise the member lands on the active node's sibling
// list. From browsing_submenu: back to the main menu. At the main menu:
// no-op, the root listing is re-emitted.
func (e *Engine) goBack(phone string, st models.ConversationState) Result {
	e.track(phone, "")

	switch st.Level {
	case models.LevelContent:
		if len(e.cache.Children(st.ActiveNodeID)) == 0 {
			return e.toRoot(phone)
		}
		node, ok := e.cache.Node(st.ActiveNodeID)
		if !ok || node.ParentID == "" {
			return e.toRoot(phone)
		}
		parent, ok := e.cache.Node(node.ParentID)
		if !ok {
			return e.toRoot(phone)
		}
		e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelSubmenu, ActiveNodeID: parent.ID})
		return Result{Success: true, Message: renderSubmenu(parent, e.cache.Children(parent.ID))}
	case models.LevelSubmenu:
		return e.toRoot(phone)
	default:
		return Result{Success: true, Message: renderRootMenu(e.cache.RootNodes())}
	}
}

// toRoot transitions to the main menu and emits the root listing.
func (e *Engine) toRoot(phone string) Result {
	e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelRoot})
	return Result{Success: true, Message: renderRootMenu(e.cache.RootNodes())}
}

// selectOption resolves a numeric selection against the option list
// visible at the current level. While viewing content, a digit is
// reinterpreted as a plain go-back transition and is not re-applied to
// the new listing.
func (e *Engine) selectOption(phone string, st models.ConversationState, text string) Result {
	if st.Level == models.LevelContent {
		return e.goBack(phone, st)
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		e.track(phone, "")
		return Result{Success: true, Message: msgUnavailable}
	}

	var options []models.MenuNode
	if st.Level == models.LevelRoot {
		options = e.cache.RootNodes()
	} else {
		options = e.cache.Children(st.ActiveNodeID)
	}

	var selected *models.MenuNode
	for i := range options {
		if options[i].Order == n {
			selected = &options[i]
			break
		}
	}
	if selected == nil {
		slog.Debug("Engine.selectOption: no node for selection", "phone", phone, "selection", n, "level", st.Level)
		e.track(phone, "")
		return Result{Success: true, Message: msgUnavailable}
	}

	e.track(phone, selected.ID)

	if selected.Kind == models.NodeKindAction {
		switch selected.ActionPayload {
		case models.ActionReturnToRoot:
			return e.toRoot(phone)
		case models.ActionEndConversation:
			e.states.Clear(phone)
			return Result{Success: true, Message: msgFarewell}
		}
	}

	children := e.cache.Children(selected.ID)
	if len(children) > 0 {
		e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelSubmenu, ActiveNodeID: selected.ID})
		return Result{Success: true, Message: renderSubmenu(*selected, children)}
	}

	e.states.Set(models.ConversationState{Phone: phone, Level: models.LevelContent, ActiveNodeID: selected.ID})
	return Result{Success: true, Message: renderContent(*selected)}
}

// track records at most one analytics event for this invocation.
func (e *Engine) track(phone, nodeID string) {
	if e.tracker == nil {
		return
	}
	e.tracker.Track(phone, nodeID)
}

// isGreeting reports whether the message equals or contains a greeting word.
func isGreeting(text string) bool {
	for _, w := range greetingWords {
		if text == w || strings.Contains(text, w) {
			return true
		}
	}
	return false
}
