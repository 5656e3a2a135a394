package store

import "time"

// EventType names a store mutation.
type EventType string

const (
	EventUserCreated    EventType = "user.created"
	EventUserUpdated    EventType = "user.updated"
	EventUserDeleted    EventType = "user.deleted"
	EventTicketCreated  EventType = "ticket.created"
	EventTicketUpdated  EventType = "ticket.updated"
	EventMessageCreated EventType = "message.created"
	EventCommentCreated EventType = "comment.created"
	EventArticleCreated EventType = "article.created"
	EventArticleUpdated EventType = "article.updated"
	EventArticleDeleted EventType = "article.deleted"
)

// Event describes one committed mutation. TicketID and OwnerID are zero when
// the mutation does not concern a ticket.
type Event struct {
	Type     EventType   `json:"type"`
	TicketID uint        `json:"ticket_id,omitempty"`
	OwnerID  uint        `json:"owner_id,omitempty"`
	Payload  interface{} `json:"payload"`
	At       time.Time   `json:"at"`
}

// Observer receives events after the store lock is released.
type Observer func(Event)

// Subscribe registers fn for every future event.
func (s *Store) Subscribe(fn Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *Store) emit(ev Event) {
	s.obsMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}
