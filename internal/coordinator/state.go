package coordinator

import "github.com/shepherdwind/bean-talk/internal/service"

// State is the conversation state of one chat.
type State int

// Conversation states.
const (
	StateIdle State = iota
	StateAwaitingCategorizationInput
	StateAwaitingBillInput
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCategorizationInput:
		return "awaiting_categorization_input"
	case StateAwaitingBillInput:
		return "awaiting_bill_input"
	default:
		return "unknown"
	}
}

type session struct {
	merchantID string
	state      State
}

// sessionLocked returns the session for chatID, creating an idle one.
func (c *Coordinator) sessionLocked(chatID int64) *session {
	s, ok := c.sessions[chatID]
	if !ok {
		s = &session{state: StateIdle}
		c.sessions[chatID] = s
	}
	return s
}

// State reports the conversation state of chatID.
func (c *Coordinator) State(chatID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[chatID]; ok {
		return s.state
	}
	return StateIdle
}

func (c *Coordinator) setState(chatID int64, state State, merchantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessionLocked(chatID)
	s.state = state
	s.merchantID = merchantID
}

// forget drops everything kept for merchantID and returns chats that were
// discussing it to idle.
func (c *Coordinator) forget(merchantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, merchantID)
	delete(c.suggestions, merchantID)
	c.shortIDs.forget(merchantID)
	for _, s := range c.sessions {
		if s.state == StateAwaitingCategorizationInput && s.merchantID == merchantID {
			s.state = StateIdle
			s.merchantID = ""
		}
	}
}

func (c *Coordinator) suggestionFor(merchantID string) *service.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestions[merchantID]
}
