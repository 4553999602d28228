package broker

import "strings"

// Assignment outcomes for a broker email change, decided against the value
// stored before the write is applied.
const (
	NoChange        = "no_change"
	FirstAssignment = "first_assignment"
	Reassignment    = "reassignment"
)

// Decision says which notifications fire for one save.
type Decision struct {
	Outcome       string
	NotifyNew     bool
	NotifyOld     bool
	OutgoingEmail string
	IncomingEmail string
}

// Evaluate compares the previous broker email (as stored, before the write)
// with the incoming one. First-time assignment notifies only the new broker;
// a change notifies both outgoing and incoming; an unchanged value never
// fires, so repeated saves with identical broker data stay idempotent.
func Evaluate(previousEmail, newEmail string) Decision {
	prev := strings.TrimSpace(strings.ToLower(previousEmail))
	next := strings.TrimSpace(strings.ToLower(newEmail))

	switch {
	case next == "" || prev == next:
		return Decision{Outcome: NoChange}
	case prev == "":
		return Decision{
			Outcome:       FirstAssignment,
			NotifyNew:     true,
			IncomingEmail: newEmail,
		}
	default:
		return Decision{
			Outcome:       Reassignment,
			NotifyNew:     true,
			NotifyOld:     true,
			OutgoingEmail: previousEmail,
			IncomingEmail: newEmail,
		}
	}
}
