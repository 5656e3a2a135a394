package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"support360/internal/config"
	"support360/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newEmptyStore(t *testing.T) *Store {
	t.Helper()
	s := New(Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func newSeededStore(t *testing.T, p Persister) *Store {
	t.Helper()
	s := New(Options{
		Persister:  p,
		BcryptCost: bcrypt.MinCost,
		Seed: config.SeedConfig{
			Enabled:    true,
			Customers:  10,
			Agents:     4,
			Tickets:    40,
			Messages:   100,
			Articles:   12,
			RandomSeed: 42,
		},
	})
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func mustUser(t *testing.T, s *Store, name string, role models.Role) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), UserInput{
		Name:  name,
		Email: name + "@example.com",
		Role:  role,
	})
	require.NoError(t, err)
	return u
}

func TestInitialize_Seeds(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())

	stats := s.Stats()
	assert.Equal(t, 15, stats["users"])
	assert.Equal(t, 40, stats["tickets"])
	assert.Equal(t, 100, stats["messages"])
	assert.Equal(t, 12, stats["articles"])

	admin, err := s.GetUser(1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, "Admin User", admin.Name)

	for _, tk := range s.GetTickets(TicketFilter{}) {
		owner, err := s.GetUser(tk.UserID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleCustomer, owner.Role)
		assert.False(t, tk.UpdatedAt.Before(tk.CreatedAt))
		if tk.AssignedToID != nil {
			agent, err := s.GetUser(*tk.AssignedToID)
			require.NoError(t, err)
			assert.Equal(t, models.RoleAgent, agent.Role)
		}
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	before := s.Stats()
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, before, s.Stats())
}

func TestInitialize_HydratesFromPersister(t *testing.T) {
	p := NewMemoryPersister()
	s := newSeededStore(t, p)
	tk, err := s.CreateTicket(context.Background(), TicketInput{Subject: "persisted", UserID: 2})
	require.NoError(t, err)

	reloaded := New(Options{Persister: p, Seed: config.SeedConfig{Enabled: true, Customers: 99}})
	require.NoError(t, reloaded.Initialize(context.Background()))
	assert.Equal(t, s.Stats(), reloaded.Stats())

	got, err := reloaded.GetTicket(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Subject)
}

func TestCreateUser_EmptyStoreStartsAtOne(t *testing.T) {
	s := newEmptyStore(t)
	u := mustUser(t, s, "first", models.RoleCustomer)
	assert.Equal(t, uint(1), u.ID)
	assert.True(t, u.IsActive)
	assert.True(t, IsPasswordHash(u.Password))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("password")))
	assert.Equal(t, "https://avatars.dicebear.com/api/avataaars/first.svg", u.AvatarURL)
}

func TestCreateUser_AfterSeededAdminGetsTwo(t *testing.T) {
	s := New(Options{BcryptCost: bcrypt.MinCost, Seed: config.SeedConfig{Enabled: true}})
	require.NoError(t, s.Initialize(context.Background()))
	u := mustUser(t, s, "second", models.RoleCustomer)
	assert.Equal(t, uint(2), u.ID)
}

func TestIDs_StrictlyIncreaseAndAreNotReused(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "a", models.RoleCustomer)
	b := mustUser(t, s, "b", models.RoleCustomer)
	require.NoError(t, s.DeleteUser(ctx, b.ID))
	c := mustUser(t, s, "c", models.RoleCustomer)
	assert.Greater(t, b.ID, a.ID)
	assert.Greater(t, c.ID, b.ID)
}

func TestCreateUser_Validation(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, UserInput{Name: "x", Email: "x@example.com", Role: "guest"})
	assert.True(t, errors.Is(err, ErrInvalid))

	mustUser(t, s, "dup", models.RoleCustomer)
	_, err = s.CreateUser(ctx, UserInput{Name: "dup2", Email: "DUP@example.com", Role: models.RoleCustomer})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestUpdateUser_MergesWithoutTouchingRole(t *testing.T) {
	s := newEmptyStore(t)
	u := mustUser(t, s, "agent", models.RoleAgent)
	name := "Renamed Agent"
	inactive := false
	got, err := s.UpdateUser(context.Background(), u.ID, UserPatch{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, models.RoleAgent, got.Role)
	assert.Equal(t, u.CreatedAt, got.CreatedAt)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.AvatarURLFor(name), got.AvatarURL)
}

func TestDeleteUser_NotFound(t *testing.T) {
	s := newEmptyStore(t)
	err := s.DeleteUser(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetUsers_RoleFilter(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	agent := models.RoleAgent
	agents := s.GetUsers(&agent)
	assert.Len(t, agents, 4)
	assert.Equal(t, agents, s.GetAvailableAgents())
	assert.Len(t, s.GetUsers(nil), 15)
}

func TestGetTickets_Filters(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	open := s.GetTickets(TicketFilter{Statuses: []models.Status{models.StatusOpen}})
	all := s.GetTickets(TicketFilter{})

	expected := 0
	for _, tk := range all {
		if tk.Status == models.StatusOpen {
			expected++
		}
	}
	assert.Len(t, open, expected)
	for _, tk := range open {
		assert.Equal(t, models.StatusOpen, tk.Status)
	}

	owner := all[0].UserID
	mine := s.GetTickets(TicketFilter{UserID: &owner, Statuses: []models.Status{all[0].Status}})
	require.NotEmpty(t, mine)
	for _, tk := range mine {
		assert.Equal(t, owner, tk.UserID)
		assert.Equal(t, all[0].Status, tk.Status)
	}
}

func TestTicketRoundTrip(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "customer", models.RoleCustomer)

	tk, err := s.CreateTicket(ctx, TicketInput{Subject: "X", Priority: models.PriorityLow, UserID: customer.ID})
	require.NoError(t, err)
	assert.Equal(t, uint(1), tk.ID)
	assert.Equal(t, models.StatusOpen, tk.Status)
	assert.Equal(t, tk.CreatedAt, tk.UpdatedAt)

	got, err := s.GetTicket(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, *tk, *got)
}

func TestCreateTicket_ReferenceChecks(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)

	_, err := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: 42})
	assert.True(t, errors.Is(err, ErrReference))

	_, err = s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID, AssignedToID: &customer.ID})
	assert.True(t, errors.Is(err, ErrReference))

	_, err = s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID, Priority: "critical"})
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestUpdateTicket_PartialMergeBumpsUpdatedAt(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Options{BcryptCost: bcrypt.MinCost, Now: func() time.Time { return clock }})
	require.NoError(t, s.Initialize(context.Background()))
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	tk, err := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	high := models.PriorityHigh
	got, err := s.UpdateTicket(ctx, tk.ID, TicketPatch{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, tk.Status, got.Status)
	assert.Equal(t, tk.UserID, got.UserID)
	assert.Equal(t, tk.CreatedAt, got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)

	// a clock that goes backwards must not move updated_at back
	clock = clock.Add(-2 * time.Hour)
	again, err := s.UpdateTicket(ctx, tk.ID, TicketPatch{})
	require.NoError(t, err)
	assert.False(t, again.UpdatedAt.Before(got.UpdatedAt))
}

func TestUpdateTicket_AssignAndClear(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	agent := mustUser(t, s, "a", models.RoleAgent)
	tk, err := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID})
	require.NoError(t, err)

	got, err := s.UpdateTicket(ctx, tk.ID, TicketPatch{AssignedToID: &agent.ID})
	require.NoError(t, err)
	require.NotNil(t, got.AssignedToID)
	assert.Equal(t, agent.ID, *got.AssignedToID)

	got, err = s.UpdateTicket(ctx, tk.ID, TicketPatch{ClearAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedToID)

	_, err = s.UpdateTicket(ctx, 999, TicketPatch{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetTicket_ReturnsCopy(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	agent := mustUser(t, s, "a", models.RoleAgent)
	tk, err := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID, AssignedToID: &agent.ID})
	require.NoError(t, err)

	got, _ := s.GetTicket(tk.ID)
	*got.AssignedToID = 777
	got.Subject = "mutated"

	again, _ := s.GetTicket(tk.ID)
	assert.Equal(t, agent.ID, *again.AssignedToID)
	assert.Equal(t, "x", again.Subject)
}

func TestCreateMessage_BumpsTicketAndReopens(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Options{BcryptCost: bcrypt.MinCost, Now: func() time.Time { return clock }})
	require.NoError(t, s.Initialize(context.Background()))
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	closed := models.StatusClosed
	tk, err := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID, Status: closed})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	msg, err := s.CreateMessage(ctx, MessageInput{TicketID: tk.ID, UserID: customer.ID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), msg.ID)

	got, _ := s.GetTicket(tk.ID)
	assert.Equal(t, clock, got.UpdatedAt)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestCreateMessage_Validation(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	tk, _ := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID})

	_, err := s.CreateMessage(ctx, MessageInput{TicketID: 99, UserID: customer.ID, Content: "x"})
	assert.True(t, errors.Is(err, ErrReference))

	_, err = s.CreateMessage(ctx, MessageInput{TicketID: tk.ID, UserID: 99, Content: "x"})
	assert.True(t, errors.Is(err, ErrReference))

	_, err = s.CreateMessage(ctx, MessageInput{TicketID: tk.ID, UserID: customer.ID, Content: "   "})
	assert.True(t, errors.Is(err, ErrInvalid))

	ai, err := s.CreateMessage(ctx, MessageInput{TicketID: tk.ID, Content: "suggestion", IsAI: true})
	require.NoError(t, err)
	assert.True(t, ai.IsAI)
}

func TestGetTicketMessages_SortedAscending(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	for _, tk := range s.GetTickets(TicketFilter{}) {
		msgs := s.GetTicketMessages(tk.ID)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
			assert.Equal(t, tk.ID, msgs[i].TicketID)
		}
	}
}

func TestComments(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	customer := mustUser(t, s, "c", models.RoleCustomer)
	tk, _ := s.CreateTicket(ctx, TicketInput{Subject: "x", UserID: customer.ID})

	c1, err := s.CreateComment(ctx, CommentInput{TicketID: tk.ID, UserID: customer.ID, Content: "first"})
	require.NoError(t, err)
	c2, err := s.CreateComment(ctx, CommentInput{TicketID: tk.ID, UserID: customer.ID, Content: "second"})
	require.NoError(t, err)
	assert.Greater(t, c2.ID, c1.ID)

	comments := s.GetTicketComments(tk.ID)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Content)
	assert.Empty(t, s.GetTicketComments(tk.ID+1))

	_, err = s.CreateComment(ctx, CommentInput{TicketID: 404, UserID: customer.ID, Content: "x"})
	assert.True(t, errors.Is(err, ErrReference))
}

func TestGetKbArticles_AgentOnlyVisibility(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	public := s.GetKbArticles(false)
	for _, a := range public {
		assert.False(t, a.IsAgentOnly)
	}
	assert.Len(t, s.GetKbArticles(true), 12)
}

func TestIncrementArticleViews_Concurrent(t *testing.T) {
	s := newSeededStore(t, NewMemoryPersister())
	a, err := s.GetKbArticle(1)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementArticleViews(context.Background(), a.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := s.GetKbArticle(a.ID)
	assert.Equal(t, a.ViewCount+n, got.ViewCount)

	_, err = s.IncrementArticleViews(context.Background(), 9999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestKbArticleCRUD(t *testing.T) {
	s := newEmptyStore(t)
	ctx := context.Background()
	a, err := s.CreateKbArticle(ctx, KbArticleInput{Title: "T", Content: "# T"})
	require.NoError(t, err)
	assert.Equal(t, "General", a.Category)

	agentOnly := true
	got, err := s.UpdateKbArticle(ctx, a.ID, KbArticlePatch{IsAgentOnly: &agentOnly})
	require.NoError(t, err)
	assert.True(t, got.IsAgentOnly)
	assert.Empty(t, s.GetKbArticles(false))

	require.NoError(t, s.DeleteKbArticle(ctx, a.ID))
	_, err = s.GetKbArticle(a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeleteKbArticle(ctx, a.ID), ErrNotFound))
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	s := newEmptyStore(t)
	var got []Event
	s.Subscribe(func(ev Event) { got = append(got, ev) })

	customer := mustUser(t, s, "c", models.RoleCustomer)
	tk, err := s.CreateTicket(context.Background(), TicketInput{Subject: "x", UserID: customer.ID})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, EventUserCreated, got[0].Type)
	assert.Equal(t, EventTicketCreated, got[1].Type)
	assert.Equal(t, tk.ID, got[1].TicketID)
	assert.Equal(t, customer.ID, got[1].OwnerID)
}

type failingPersister struct {
	*MemoryPersister
	fail bool
}

func (p *failingPersister) Save(ctx context.Context, key string, data []byte) error {
	if p.fail {
		return errors.New("quota exceeded")
	}
	return p.MemoryPersister.Save(ctx, key, data)
}

func TestPersistFailure_IsSwallowed(t *testing.T) {
	p := &failingPersister{MemoryPersister: NewMemoryPersister()}
	s := New(Options{Persister: p, BcryptCost: bcrypt.MinCost})
	require.NoError(t, s.Initialize(context.Background()))

	p.fail = true
	u, err := s.CreateUser(context.Background(), UserInput{Name: "n", Email: "n@example.com", Role: models.RoleCustomer})
	require.NoError(t, err)

	got, err := s.GetUser(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "n", got.Name)

	_, ok, _ := p.MemoryPersister.Load(context.Background(), SlotUsers)
	assert.False(t, ok)
}
