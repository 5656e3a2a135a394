package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"support360/internal/models"
	"support360/internal/store"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	store    *store.Store
	clock    *testClock
	admin    *models.User
	agent    *models.User
	agent2   *models.User
	customer *models.User
	other    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	st := store.New(store.Options{BcryptCost: bcrypt.MinCost, Now: clock.Now})
	require.NoError(t, st.Initialize(context.Background()))

	f := &fixture{store: st, clock: clock}
	f.admin = f.user(t, "Ada Admin", "admin@example.com", models.RoleAdmin)
	f.agent = f.user(t, "Sarah Agent", "sarah@example.com", models.RoleAgent)
	f.agent2 = f.user(t, "Tom Agent", "tom@example.com", models.RoleAgent)
	f.customer = f.user(t, "Carl Customer", "carl@example.com", models.RoleCustomer)
	f.other = f.user(t, "Olga Other", "olga@example.com", models.RoleCustomer)
	return f
}

func (f *fixture) user(t *testing.T, name, email string, role models.Role) *models.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), store.UserInput{Name: name, Email: email, Role: role, Password: "pw"})
	require.NoError(t, err)
	return u
}

func (f *fixture) ticket(t *testing.T, owner *models.User, subject string, assignee *models.User) *models.Ticket {
	t.Helper()
	in := store.TicketInput{Subject: subject, Description: subject + " details", UserID: owner.ID}
	if assignee != nil {
		in.AssignedToID = &assignee.ID
	}
	tk, err := f.store.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	return tk
}

func (f *fixture) setStatus(t *testing.T, id uint, status models.Status) {
	t.Helper()
	_, err := f.store.UpdateTicket(context.Background(), id, store.TicketPatch{Status: &status})
	require.NoError(t, err)
}
