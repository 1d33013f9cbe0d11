package blackboard

import (
	"sync"

	"github.com/srcful-labs/energygateway/pkg/gateway/clock"
)

// MessageKind classifies an append-only log entry surfaced by
// GET /api/message: "error", "warning", or "info".
type MessageKind int

const (
	MessageInfo MessageKind = iota
	MessageWarning
	MessageError
)

func (k MessageKind) String() string {
	switch k {
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	default:
		return "info"
	}
}

// Message is one append-only log entry.
type Message struct {
	ID        int64
	Kind      MessageKind
	Text      string
	Timestamp int64
}

// MessageLog is the append-only, strictly-increasing-id message log.
type MessageLog struct {
	mu   sync.RWMutex
	ids  *clock.IDGenerator
	clk  *clock.Clock
	list []Message
}

func newMessageLog(clk *clock.Clock) *MessageLog {
	return &MessageLog{ids: clock.NewIDGenerator(), clk: clk}
}

// Append adds a new message of the given kind and text, stamped with the
// blackboard's clock, and returns it.
func (m *MessageLog) Append(kind MessageKind, text string) Message {
	msg := Message{
		ID:        m.ids.Next(),
		Kind:      kind,
		Text:      text,
		Timestamp: m.clk.TimeMs(),
	}
	m.mu.Lock()
	m.list = append(m.list, msg)
	m.mu.Unlock()
	return msg
}

// All returns a snapshot of every message logged so far, oldest first.
func (m *MessageLog) All() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.list))
	copy(out, m.list)
	return out
}

// ByID returns the message with the given id via a linear scan of the log.
func (m *MessageLog) ByID(id int64) (Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.list {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}
