package app

import (
	"sync/atomic"

	"livepoll-service/internal/domain"
)

// DefaultSubscriberBuffer is the per-subscriber event backlog.
const DefaultSubscriberBuffer = 16

// Role distinguishes presenter views from participant devices.
type Role string

const (
	RolePresenter   Role = "presenter"
	RoleParticipant Role = "participant"
)

var subscriptionSeq atomic.Uint64

// Subscription receives the events of one session. The channel is closed
// when the subscriber is removed or the session ends.
type Subscription struct {
	id   uint64
	code string
	role Role
	ch   chan domain.Event
}

func newSubscription(code string, role Role, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Subscription{
		id:   subscriptionSeq.Add(1),
		code: code,
		role: role,
		ch:   make(chan domain.Event, buffer),
	}
}

// Events is closed once the subscription is removed.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func (s *Subscription) ID() uint64   { return s.id }
func (s *Subscription) Code() string { return s.code }
func (s *Subscription) Role() Role   { return s.role }

// wants filters per role: participants only follow navigation and the end.
func (s *Subscription) wants(kind domain.EventKind) bool {
	return s.role == RolePresenter || kind != domain.EventAggregateUpdated
}

// deliver never blocks. When the buffer is full the oldest queued event is
// discarded, the next event supersedes it anyway. Must be called with the
// owning session's write lock held, which makes this the only sender.
func (s *Subscription) deliver(ev domain.Event) (dropped bool) {
	select {
	case s.ch <- ev:
		return false
	default:
	}
	select {
	case <-s.ch:
		dropped = true
	default:
	}
	s.ch <- ev
	return dropped
}
