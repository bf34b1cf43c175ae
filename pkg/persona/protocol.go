package persona

import "fmt"

// State is the selection protocol state of one scope.
type State string

const (
	StateIdle             State = "idle"
	StatePrimaryPending   State = "primary-pending"
	StateAlternatePending State = "alternate-pending"
)

// Trigger is an input to the selection protocol.
type Trigger string

const (
	TriggerMenuPosted        Trigger = "menu-posted"
	TriggerAlternatePosted   Trigger = "alternate-posted"
	TriggerGlyphResolved     Trigger = "glyph-resolved"
	TriggerAlternateResolved Trigger = "alternate-resolved"
)

// Posting a prompt supersedes whatever prompt the scope had. A plain glyph
// selection consumes a primary prompt but leaves an alternate menu open.
var transitions = map[State]map[Trigger]State{
	StateIdle: {
		TriggerMenuPosted:      StatePrimaryPending,
		TriggerAlternatePosted: StateAlternatePending,
		TriggerGlyphResolved:   StateIdle,
	},
	StatePrimaryPending: {
		TriggerMenuPosted:      StatePrimaryPending,
		TriggerAlternatePosted: StateAlternatePending,
		TriggerGlyphResolved:   StateIdle,
	},
	StateAlternatePending: {
		TriggerMenuPosted:        StatePrimaryPending,
		TriggerAlternatePosted:   StateAlternatePending,
		TriggerGlyphResolved:     StateAlternatePending,
		TriggerAlternateResolved: StateIdle,
	},
}

// TransitionError is returned for a trigger the current state does not accept.
type TransitionError struct {
	From    State
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal selection transition %s on %s", e.From, e.Trigger)
}

// Next returns the state reached from s on trigger.
func (s State) Next(trigger Trigger) (State, error) {
	next, ok := transitions[s][trigger]
	if !ok {
		return s, &TransitionError{From: s, Trigger: trigger}
	}
	return next, nil
}

// Prompt is an outstanding primary selection menu.
type Prompt struct {
	MessageID string
	TriggerID string
}

// AlternatePrompt is an outstanding "ask another persona" menu, looked up by its message ID.
type AlternatePrompt struct {
	MessageID string
	Scope     Scope
	InboundID string
}

// session is the protocol state of one scope.
type session struct {
	state     State
	primary   *Prompt
	alternate *AlternatePrompt
}

func (s *session) apply(trigger Trigger) error {
	if s.state == "" {
		s.state = StateIdle
	}
	next, err := s.state.Next(trigger)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}
