package store

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"support360/internal/models"
)

var (
	seedFirstNames = []string{"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda", "William", "Elizabeth"}
	seedLastNames  = []string{"Smith", "Johnson", "Williams", "Jones", "Brown", "Davis", "Miller", "Wilson", "Moore", "Taylor"}

	seedSubjects = []string{
		"Can't access my account",
		"Payment failed",
		"How do I reset my password?",
		"Service is down",
		"Need to update billing information",
		"Feature request",
		"Bug report",
		"Product not working as expected",
		"Request for refund",
		"Subscription cancellation",
	}

	seedArticleTitles = []string{
		"How to reset your password",
		"Troubleshooting account access issues",
		"Billing and payment FAQ",
		"Getting started with our product",
		"Advanced features guide",
		"Security best practices",
		"API documentation",
		"Known issues and workarounds",
		"Upcoming features and releases",
		"Contact support options",
	}

	seedCategories = []string{"Account", "Billing", "Technical", "General", "Security"}
)

// AdminEmail is the login of the seeded administrator.
const AdminEmail = "admin@SUPPORTLINE.com"

const day = 24 * time.Hour

// seedLocked fills an empty store with one admin, customers, agents, tickets, messages and articles.
func (s *Store) seedLocked() error {
	sc := s.opts.Seed
	seed := sc.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	now := s.now()

	// One hash for every seeded account keeps startup fast.
	hash, err := HashPassword(s.opts.DefaultPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}

	s.users = append(s.users[:0], models.User{
		ID:        1,
		Name:      "Admin User",
		Email:     AdminEmail,
		Password:  hash,
		Role:      models.RoleAdmin,
		CreatedAt: now,
		AvatarURL: "https://avatars.dicebear.com/api/avataaars/admin.svg",
		IsActive:  true,
	})

	var customerIDs, agentIDs []uint
	nextID := uint(2)
	addUsers := func(n int, role models.Role) []uint {
		ids := make([]uint, 0, n)
		for i := 0; i < n; i++ {
			first := seedFirstNames[rng.Intn(len(seedFirstNames))]
			last := seedLastNames[rng.Intn(len(seedLastNames))]
			name := first + " " + last
			s.users = append(s.users, models.User{
				ID:        nextID,
				Name:      name,
				Email:     fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), nextID),
				Password:  hash,
				Role:      role,
				CreatedAt: now.Add(-randDuration(rng, 30*day)),
				AvatarURL: models.AvatarURLFor(name),
				IsActive:  true,
			})
			ids = append(ids, nextID)
			nextID++
		}
		return ids
	}
	customerIDs = addUsers(sc.Customers, models.RoleCustomer)
	agentIDs = addUsers(sc.Agents, models.RoleAgent)

	s.tickets = s.tickets[:0]
	if len(customerIDs) > 0 {
		for i := 1; i <= sc.Tickets; i++ {
			created := now.Add(-randDuration(rng, 30*day))
			t := models.Ticket{
				ID:          uint(i),
				Subject:     seedSubjects[rng.Intn(len(seedSubjects))],
				Description: "This is a sample ticket description for ticket #" + fmt.Sprint(i) + ".",
				Status:      models.Statuses[rng.Intn(len(models.Statuses))],
				Priority:    models.Priorities[rng.Intn(len(models.Priorities))],
				CreatedAt:   created,
				UpdatedAt:   created.Add(randDuration(rng, 7*day)),
				UserID:      customerIDs[rng.Intn(len(customerIDs))],
			}
			if len(agentIDs) > 0 && rng.Float64() > 0.2 {
				agent := agentIDs[rng.Intn(len(agentIDs))]
				t.AssignedToID = &agent
			}
			s.tickets = append(s.tickets, t)
		}
	}

	s.messages = s.messages[:0]
	if len(s.tickets) > 0 && len(customerIDs) > 0 {
		for i := 1; i <= sc.Messages; i++ {
			fromCustomer := len(agentIDs) == 0 || rng.Float64() > 0.5
			author := customerIDs[rng.Intn(len(customerIDs))]
			kind := "customer"
			if !fromCustomer {
				author = agentIDs[rng.Intn(len(agentIDs))]
				kind = "agent"
			}
			s.messages = append(s.messages, models.Message{
				ID:        uint(i),
				Content:   fmt.Sprintf("This is a sample %s message %d.", kind, i),
				CreatedAt: now.Add(-randDuration(rng, 30*day)),
				TicketID:  s.tickets[rng.Intn(len(s.tickets))].ID,
				UserID:    author,
			})
		}
	}

	s.articles = s.articles[:0]
	for i := 1; i <= sc.Articles; i++ {
		title := seedArticleTitles[i%len(seedArticleTitles)]
		created := now.Add(-randDuration(rng, 90*day))
		s.articles = append(s.articles, models.KbArticle{
			ID:          uint(i),
			Title:       title,
			Content:     seedArticleContent(title),
			Category:    seedCategories[rng.Intn(len(seedCategories))],
			CreatedAt:   created,
			UpdatedAt:   created.Add(randDuration(rng, 30*day)),
			ViewCount:   rng.Intn(1000),
			IsAgentOnly: rng.Float64() > 0.7,
		})
	}

	s.comments = s.comments[:0]
	s.seq = sequences{}
	s.reconcileSequences()
	return nil
}

func seedArticleContent(title string) string {
	return "# " + title + "\n\n" +
		"This is a detailed article that explains how to use this feature or solve this problem.\n\n" +
		"## Steps\n\n1. First step\n2. Second step\n3. Third step\n\n" +
		"## Additional Information\n\nHere is some additional information about this topic."
}

func randDuration(rng *rand.Rand, limit time.Duration) time.Duration {
	return time.Duration(rng.Int63n(int64(limit)))
}
