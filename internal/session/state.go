// Package session keeps per-learner conversation state: the highest
// unlocked lesson and the previous question/answer pair.
//
// Only the dispatcher writes session state. Progression advances by
// exactly one when the lesson just taught is the currently unlocked one;
// completing any other lesson changes nothing. Every Store applies that
// rule as a single atomic read-modify-write.
package session

import (
	"context"
	"time"
)

// FirstLesson is the lesson a new session starts with.
const FirstLesson = 1

// Exchange is one question and the answer given to it.
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// State is a snapshot of one session.
type State struct {
	ID             string    `json:"id"`
	UnlockedLesson int       `json:"unlocked_lesson"`
	Previous       *Exchange `json:"previous,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewState returns the state of a session that has done nothing yet.
func NewState(id string) *State {
	return &State{ID: id, UnlockedLesson: FirstLesson, UpdatedAt: time.Now().UTC()}
}

// Unlocked reports whether lesson n is accessible.
func (s *State) Unlocked(n int) bool {
	return n >= FirstLesson && n <= s.UnlockedLesson
}

// Advance applies the progression rule for completing lesson n and
// reports whether the state changed.
func (s *State) Advance(n int) bool {
	if n != s.UnlockedLesson {
		return false
	}
	s.UnlockedLesson++
	return true
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.Previous != nil {
		p := *s.Previous
		c.Previous = &p
	}
	return &c
}

// Store persists session state. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the state for id. An unknown id yields a fresh state
	// that is not stored; only writes create sessions.
	Get(ctx context.Context, id string) (*State, error)

	// CompleteLesson applies the progression rule for lesson n and returns
	// the resulting state and whether this call advanced it.
	CompleteLesson(ctx context.Context, id string, n int) (*State, bool, error)

	// RecordExchange replaces the previous exchange. Concurrent calls for
	// the same session are last-write-wins.
	RecordExchange(ctx context.Context, id, query, response string) error
}
