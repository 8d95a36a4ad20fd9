// Package conversation holds the turn history sent with every request.
package conversation

import (
	"errors"
	"fmt"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrProtocolViolation is returned when an append would break strict
// user/assistant alternation.
var ErrProtocolViolation = errors.New("protocol violation")

// Turn is one message of the conversation. Turns are values; once appended
// their content is never modified.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is an ordered, append-only history that alternates strictly
// between user and assistant turns, starting with user. It is owned by a
// single session and is not safe for concurrent use.
type Conversation struct {
	turns []Turn
	sizer Sizer
}

// New creates an empty conversation measured by sizer. A nil sizer counts
// characters.
func New(sizer Sizer) *Conversation {
	if sizer == nil {
		sizer = CharSizer{}
	}
	return &Conversation{sizer: sizer}
}

// Append adds a turn. It fails with ErrProtocolViolation if role is not the
// one expected next.
func (c *Conversation) Append(role Role, content string) error {
	if want := c.nextRole(); role != want {
		return fmt.Errorf("%w: appending %s turn, expected %s", ErrProtocolViolation, role, want)
	}
	c.turns = append(c.turns, Turn{Role: role, Content: content})
	return nil
}

func (c *Conversation) nextRole() Role {
	if len(c.turns)%2 == 0 {
		return RoleUser
	}
	return RoleAssistant
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Pending reports whether the last turn is a user turn awaiting a reply.
func (c *Conversation) Pending() bool {
	return len(c.turns) > 0 && c.turns[len(c.turns)-1].Role == RoleUser
}

// DropPending removes an unanswered trailing user turn, so that a turn that
// produced no reply leaves the history as it was before the turn began.
func (c *Conversation) DropPending() (Turn, bool) {
	if !c.Pending() {
		return Turn{}, false
	}
	last := c.turns[len(c.turns)-1]
	c.turns = c.turns[:len(c.turns)-1]
	return last, true
}

// Reset clears the history.
func (c *Conversation) Reset() { c.turns = nil }

// Size returns the total size of all turns as measured by the sizer.
func (c *Conversation) Size() int {
	total := 0
	for _, t := range c.turns {
		total += c.sizer.Size(t)
	}
	return total
}

// TrimToBudget evicts the oldest user/assistant pairs until Size is at most
// max and returns the number of turns removed. The most recent user turn and
// its reply (if present) are never evicted, even if they alone exceed max.
func (c *Conversation) TrimToBudget(max int) int {
	total := c.Size()
	if total <= max {
		return 0
	}

	// Index of the most recent user turn; everything from there on is kept.
	protected := len(c.turns) - 1
	if protected >= 0 && c.turns[protected].Role == RoleAssistant {
		protected--
	}

	cut := 0
	for total > max && cut+2 <= protected {
		total -= c.sizer.Size(c.turns[cut]) + c.sizer.Size(c.turns[cut+1])
		cut += 2
	}
	if cut == 0 {
		return 0
	}
	c.turns = append([]Turn(nil), c.turns[cut:]...)
	return cut
}
