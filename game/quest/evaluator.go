package quest

import "time"

// Conditions gate when a requirement counts an action, and when a quest
// may be activated.
type Conditions struct {
	// MinLevel is the minimum actor level for the action to count.
	MinLevel int `json:"min_level,omitempty"`
	// Prerequisite names a quest that must be claimed before this one
	// becomes available.
	Prerequisite string `json:"prerequisite,omitempty"`
}

// Requirement describes a quest's single goal: perform Action enough
// times (or with enough magnitude) to reach Target.
type Requirement struct {
	Action     string     `json:"action"`
	Target     int        `json:"target"`
	Conditions Conditions `json:"conditions,omitempty"`
}

// ActionPayload carries the context of one game action.
type ActionPayload struct {
	// Amount is an explicit progress magnitude (e.g. "collect 5 berries").
	// Zero means the default of +1 per qualifying action.
	Amount int `json:"amount,omitempty"`
	// ActorLevel is the account's level at the time of the action.
	ActorLevel int `json:"actor_level,omitempty"`
	// Attrs holds free-form action attributes (enemy type, map id, ...).
	Attrs map[string]string `json:"attrs,omitempty"`
}

// ActivityEntry is one append-only progress log record.
type ActivityEntry struct {
	Action         string    `json:"action"`
	ProgressBefore int       `json:"progress_before"`
	ProgressAfter  int       `json:"progress_after"`
	At             time.Time `json:"at"`
}

// Evaluate maps (requirement, prior progress, action, payload) to the new
// progress value. Pure and deterministic: non-matching actions and unmet
// conditions return prior unchanged, qualifying actions add the payload
// amount (default 1) clamped to the target.
func Evaluate(req Requirement, prior int, action string, payload ActionPayload) int {
	if action != req.Action {
		return prior
	}
	if req.Conditions.MinLevel > 0 && payload.ActorLevel < req.Conditions.MinLevel {
		return prior
	}
	inc := payload.Amount
	if inc <= 0 {
		inc = 1
	}
	next := prior + inc
	if next > req.Target {
		next = req.Target
	}
	return next
}
