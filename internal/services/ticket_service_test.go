package services

import (
	"context"
	"testing"

	"support360/internal/models"
	"support360/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketService_ListScopesCustomers(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)
	ctx := context.Background()

	f.ticket(t, f.customer, "Login broken", f.agent)
	f.ticket(t, f.customer, "Billing question", nil)
	f.ticket(t, f.other, "Other problem", f.agent2)

	mine, total, err := svc.ListTickets(ctx, f.customer, &TicketListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, v := range mine {
		assert.Equal(t, f.customer.ID, v.UserID)
		require.NotNil(t, v.Requester)
		assert.Equal(t, "Carl Customer", v.Requester.Name)
	}

	all, total, err := svc.ListTickets(ctx, f.agent, &TicketListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	assigned, _, err := svc.ListTickets(ctx, f.admin, &TicketListRequest{AgentID: &f.agent2.ID})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	require.NotNil(t, assigned[0].Assignee)
	assert.Equal(t, f.agent2.ID, assigned[0].Assignee.ID)
}

func TestTicketService_ListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.ticket(t, f.customer, "Printer jam", nil)
	}
	f.ticket(t, f.customer, "Password reset", nil)

	page, total, err := svc.ListTickets(ctx, f.admin, &TicketListRequest{Search: "printer", Page: 2, PageSize: 2, SortBy: "id", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, uint(3), page[0].ID)
	assert.Equal(t, uint(4), page[1].ID)

	_, _, err = svc.ListTickets(ctx, f.admin, &TicketListRequest{Status: []string{"bogus"}})
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestTicketService_CustomerCreateIsForced(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)

	tk, err := svc.CreateTicket(context.Background(), f.customer, store.TicketInput{
		Subject:      "Help",
		UserID:       f.other.ID,
		Status:       models.StatusResolved,
		AssignedToID: &f.agent.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, tk.UserID)
	assert.Equal(t, models.StatusOpen, tk.Status)
	assert.Nil(t, tk.AssignedToID)

	onBehalf, err := svc.CreateTicket(context.Background(), f.agent, store.TicketInput{Subject: "Phoned in", UserID: f.other.ID})
	require.NoError(t, err)
	assert.Equal(t, f.other.ID, onBehalf.UserID)
}

func TestTicketService_Visibility(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)
	ctx := context.Background()
	tk := f.ticket(t, f.customer, "Private", nil)

	_, err := svc.GetTicket(ctx, f.other, tk.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.PostMessage(ctx, f.other, tk.ID, "sneaky")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.PostMessage(ctx, f.customer, tk.ID, "any update?")
	require.NoError(t, err)
	_, err = svc.PostComment(ctx, f.agent, tk.ID, "looking into it")
	require.NoError(t, err)

	d, err := svc.GetTicket(ctx, f.customer, tk.ID)
	require.NoError(t, err)
	require.Len(t, d.Messages, 1)
	require.NotNil(t, d.Messages[0].Author)
	assert.Equal(t, f.customer.ID, d.Messages[0].Author.ID)
	require.Len(t, d.Comments, 1)
	assert.Equal(t, "looking into it", d.Comments[0].Content)
}

func TestTicketService_UpdatePermissions(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)
	ctx := context.Background()
	tk := f.ticket(t, f.customer, "Assigned elsewhere", f.agent2)
	resolved := models.StatusResolved

	_, err := svc.UpdateTicket(ctx, f.customer, tk.ID, store.TicketPatch{Status: &resolved})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.UpdateTicket(ctx, f.agent, tk.ID, store.TicketPatch{Status: &resolved})
	assert.ErrorIs(t, err, ErrForbidden, "agent cannot manage a ticket assigned to someone else")

	updated, err := svc.UpdateTicket(ctx, f.agent2, tk.ID, store.TicketPatch{Status: &resolved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, updated.Status)

	_, err = svc.UpdateTicket(ctx, f.agent2, tk.ID, store.TicketPatch{AssignedToID: &f.agent.ID})
	assert.ErrorIs(t, err, ErrForbidden, "only admins reassign")

	reassigned, err := svc.UpdateTicket(ctx, f.admin, tk.ID, store.TicketPatch{AssignedToID: &f.agent.ID})
	require.NoError(t, err)
	assert.True(t, reassigned.AssignedTo(f.agent.ID))

	free := f.ticket(t, f.customer, "Unassigned", nil)
	claimed, err := svc.UpdateTicket(ctx, f.agent, free.ID, store.TicketPatch{AssignedToID: &f.agent.ID})
	require.NoError(t, err)
	assert.True(t, claimed.AssignedTo(f.agent.ID))
}

func TestTicketService_MessageReopensClosed(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(f.store, nil)
	ctx := context.Background()
	tk := f.ticket(t, f.customer, "Done", nil)
	f.setStatus(t, tk.ID, models.StatusClosed)

	_, err := svc.PostMessage(ctx, f.customer, tk.ID, "actually it's back")
	require.NoError(t, err)
	got, err := f.store.GetTicket(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}
