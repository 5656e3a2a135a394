package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"support360/internal/config"
	"support360/internal/metrics"
	"support360/internal/models"

	"github.com/sirupsen/logrus"
)

// Slot keys of the persisted snapshot.
const (
	SlotUsers    = "support360_users"
	SlotTickets  = "support360_tickets"
	SlotMessages = "support360_messages"
	SlotArticles = "support360_kbArticles"
	SlotComments = "support360_comments"
	SlotMeta     = "support360_meta"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid input")
	ErrReference = errors.New("dangling reference")
	ErrConflict  = errors.New("conflict")
)

// Options configures a Store.
type Options struct {
	Persister       Persister
	Logger          *logrus.Logger
	Seed            config.SeedConfig
	DefaultPassword string
	BcryptCost      int
	Now             func() time.Time
}

// sequences are per-collection id high-water marks.
type sequences struct {
	Users    uint `json:"users"`
	Tickets  uint `json:"tickets"`
	Messages uint `json:"messages"`
	Articles uint `json:"articles"`
	Comments uint `json:"comments"`
}

// Store owns the five collections and mirrors them into the persister after every mutation.
// Reads operate on the in-memory snapshot and return copies.
type Store struct {
	mu          sync.RWMutex
	initialized bool

	users    []models.User
	tickets  []models.Ticket
	messages []models.Message
	articles []models.KbArticle
	comments []models.Comment
	seq      sequences

	persister Persister
	logger    *logrus.Logger
	opts      Options
	now       func() time.Time

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an empty store. Initialize must be called before use.
func New(opts Options) *Store {
	if opts.Persister == nil {
		opts.Persister = NewMemoryPersister()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultPassword == "" {
		opts.DefaultPassword = "password"
	}
	return &Store{
		persister: opts.Persister,
		logger:    opts.Logger,
		opts:      opts,
		now:       opts.Now,
	}
}

// Initialize hydrates every collection from the persister, seeding when the users slot is absent.
// Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	raw, ok, err := s.persister.Load(ctx, SlotUsers)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	if !ok {
		if s.opts.Seed.Enabled {
			if err := s.seedLocked(); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			s.persistLocked(ctx, SlotUsers, SlotTickets, SlotMessages, SlotArticles, SlotComments, SlotMeta)
			s.logger.Infof("Seeded store: %d users, %d tickets, %d messages, %d articles",
				len(s.users), len(s.tickets), len(s.messages), len(s.articles))
		}
		s.initialized = true
		return nil
	}

	if err := json.Unmarshal(raw, &s.users); err != nil {
		return fmt.Errorf("decode %s: %w", SlotUsers, err)
	}
	if err := s.loadSlot(ctx, SlotTickets, &s.tickets); err != nil {
		return err
	}
	if err := s.loadSlot(ctx, SlotMessages, &s.messages); err != nil {
		return err
	}
	if err := s.loadSlot(ctx, SlotArticles, &s.articles); err != nil {
		return err
	}
	if err := s.loadSlot(ctx, SlotComments, &s.comments); err != nil {
		return err
	}
	if err := s.loadSlot(ctx, SlotMeta, &s.seq); err != nil {
		return err
	}
	s.reconcileSequences()

	s.initialized = true
	s.logger.Infof("Loaded store: %d users, %d tickets, %d messages, %d articles, %d comments",
		len(s.users), len(s.tickets), len(s.messages), len(s.articles), len(s.comments))
	return nil
}

// Initialized reports whether Initialize completed.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) loadSlot(ctx context.Context, key string, dst interface{}) error {
	raw, ok, err := s.persister.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// reconcileSequences raises each high-water mark to at least the largest id present.
func (s *Store) reconcileSequences() {
	for _, u := range s.users {
		s.seq.Users = max(s.seq.Users, u.ID)
	}
	for _, t := range s.tickets {
		s.seq.Tickets = max(s.seq.Tickets, t.ID)
	}
	for _, m := range s.messages {
		s.seq.Messages = max(s.seq.Messages, m.ID)
	}
	for _, a := range s.articles {
		s.seq.Articles = max(s.seq.Articles, a.ID)
	}
	for _, c := range s.comments {
		s.seq.Comments = max(s.seq.Comments, c.ID)
	}
}

// persistLocked writes the named slots. Failures are logged and counted, never returned.
func (s *Store) persistLocked(ctx context.Context, slots ...string) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, slot := range slots {
		var v interface{}
		switch slot {
		case SlotUsers:
			v = s.users
		case SlotTickets:
			v = s.tickets
		case SlotMessages:
			v = s.messages
		case SlotArticles:
			v = s.articles
		case SlotComments:
			v = s.comments
		case SlotMeta:
			v = s.seq
		default:
			continue
		}

		start := time.Now()
		data, err := json.Marshal(v)
		if err == nil {
			err = s.persister.Save(context.WithoutCancel(ctx), slot, data)
		}
		metrics.ObservePersist(slot, time.Since(start))
		if err != nil {
			metrics.IncPersistError(slot)
			s.logger.WithError(err).WithField("slot", slot).Error("Failed to persist snapshot")
		}
	}
}

// mutate runs fn under the write lock, persists the slots it reports and then notifies observers.
func (s *Store) mutate(ctx context.Context, fn func() (Event, []string, error)) error {
	s.mu.Lock()
	ev, slots, err := fn()
	if err == nil && len(slots) > 0 {
		s.persistLocked(ctx, append(slots, SlotMeta)...)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	ev.At = s.now()
	metrics.IncMutation(string(ev.Type))
	s.emit(ev)
	return nil
}

// Stats returns per-collection record counts.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"users":    len(s.users),
		"tickets":  len(s.tickets),
		"messages": len(s.messages),
		"articles": len(s.articles),
		"comments": len(s.comments),
	}
}

// Close releases the persister.
func (s *Store) Close() error {
	return s.persister.Close()
}

// stamp returns now, nudged forward so it is never before prev.
func (s *Store) stamp(prev time.Time) time.Time {
	now := s.now()
	if now.Before(prev) {
		return prev
	}
	return now
}
