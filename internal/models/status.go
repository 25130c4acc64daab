package models

import "fmt"

type ActorRole string

const (
	RoleClient ActorRole = "client"
	RoleHost   ActorRole = "host"
)

// Transition names a lifecycle operation on an existing booking.
type Transition string

const (
	TransitionConfirm  Transition = "confirm"
	TransitionDecline  Transition = "decline"
	TransitionCancel   Transition = "cancel"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionDispute  Transition = "dispute"
)

var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusDisputed},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusDisputed},
	StatusInProgress: {StatusCompleted, StatusDisputed},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusDisputed:   {},
}

// TransitionRule describes one row of the guard table.
type TransitionRule struct {
	From   []BookingStatus
	To     BookingStatus
	Actors []ActorRole
}

var transitionRules = map[Transition]TransitionRule{
	TransitionConfirm:  {From: []BookingStatus{StatusPending}, To: StatusConfirmed, Actors: []ActorRole{RoleHost}},
	TransitionDecline:  {From: []BookingStatus{StatusPending}, To: StatusCancelled, Actors: []ActorRole{RoleHost}},
	TransitionCancel:   {From: []BookingStatus{StatusPending, StatusConfirmed}, To: StatusCancelled, Actors: []ActorRole{RoleClient, RoleHost}},
	TransitionStart:    {From: []BookingStatus{StatusConfirmed}, To: StatusInProgress, Actors: []ActorRole{RoleHost, RoleClient}},
	TransitionComplete: {From: []BookingStatus{StatusInProgress}, To: StatusCompleted, Actors: []ActorRole{RoleHost}},
	TransitionDispute:  {From: []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}, To: StatusDisputed, Actors: []ActorRole{RoleClient, RoleHost}},
}

// RuleFor returns the guard table row for a transition.
func RuleFor(t Transition) (TransitionRule, bool) {
	r, ok := transitionRules[t]
	return r, ok
}

// Allows reports whether the rule may fire from the given status.
func (r TransitionRule) Allows(from BookingStatus) bool {
	for _, s := range r.From {
		if s == from {
			return from.CanTransitionTo(r.To)
		}
	}
	return false
}

// Permits reports whether the role may perform the transition.
func (r TransitionRule) Permits(role ActorRole) bool {
	for _, a := range r.Actors {
		if a == role {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return !ok || len(allowed) == 0
}

func (s BookingStatus) Occupies() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}
