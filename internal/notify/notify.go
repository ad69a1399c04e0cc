// Package notify fans trading lifecycle events out to subscribers.
package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventSignalGenerated EventType = "signal_generated"
	EventPositionOpened  EventType = "position_opened"
	EventPositionClosed  EventType = "position_closed"
	EventRiskRejected    EventType = "risk_rejected"
	EventEmergencyStop   EventType = "emergency_stop"
	EventBotStarted      EventType = "bot_started"
	EventBotStopped      EventType = "bot_stopped"
	EventBotError        EventType = "bot_error"
)

// Event is one notification. Fields holds event-specific details.
type Event struct {
	Type      EventType
	BotID     string
	Symbol    string
	Message   string
	Fields    map[string]interface{}
	Timestamp time.Time
}

// Notifier receives lifecycle events. Implementations must not block;
// the engine notifies from hot paths.
type Notifier interface {
	Notify(event Event)
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(event Event) {
	ev := n.log.Info()
	if event.Type == EventEmergencyStop || event.Type == EventBotError {
		ev = n.log.Error()
	}
	ev = ev.
		Str("event", string(event.Type)).
		Str("bot", event.BotID).
		Str("symbol", event.Symbol)
	for k, v := range event.Fields {
		ev = ev.Interface(k, v)
	}
	msg := event.Message
	if msg == "" {
		msg = strings.ReplaceAll(string(event.Type), "_", " ")
	}
	ev.Msg(msg)
}

// Multi fans one event out to several notifiers.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(event Event) {
	for _, n := range m.notifiers {
		n.Notify(event)
	}
}

// Recorder keeps events in memory, for tests and status endpoints.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty in-memory notifier.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns recorded events of one type.
func (r *Recorder) ByType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
