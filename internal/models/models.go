package models

import (
	"strings"
	"time"
)

// Role 用户角色
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for agents and admins.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Status 工单状态
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Statuses lists ticket statuses in board order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Done is true for resolved and closed tickets.
func (s Status) Done() bool {
	return s == StatusResolved || s == StatusClosed
}

// Priority 工单优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// User 用户模型. Password holds a bcrypt hash and is persisted, never rendered by handlers.
type User struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsActive  bool      `json:"is_active"`
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsActive  bool      `json:"is_active"`
}

// Profile strips the password hash.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		AvatarURL: u.AvatarURL,
		IsActive:  u.IsActive,
	}
}

// FirstName returns the first word of the user's name.
func (u User) FirstName() string {
	if i := strings.IndexByte(u.Name, ' '); i > 0 {
		return u.Name[:i]
	}
	return u.Name
}

// AvatarURLFor derives the avatar image address from a display name.
func AvatarURLFor(name string) string {
	return "https://avatars.dicebear.com/api/avataaars/" + strings.Replace(name, " ", "", 1) + ".svg"
}

// Ticket 工单模型
type Ticket struct {
	ID           uint      `json:"id"`
	Subject      string    `json:"subject"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       uint      `json:"user_id"`
	AssignedToID *uint     `json:"assigned_to_id"`
}

// AssignedTo reports whether the ticket is assigned to the given agent.
func (t Ticket) AssignedTo(agentID uint) bool {
	return t.AssignedToID != nil && *t.AssignedToID == agentID
}

// Message 工单消息
type Message struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	TicketID  uint      `json:"ticket_id"`
	UserID    uint      `json:"user_id"`
	IsAI      bool      `json:"is_ai"`
}

// Comment 工单评论
type Comment struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	TicketID  uint      `json:"ticket_id"`
	UserID    uint      `json:"user_id"`
}

// KbArticle 知识库文章, content is markdown.
type KbArticle struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ViewCount   int       `json:"view_count"`
	IsAgentOnly bool      `json:"is_agent_only"`
}

// Slot is one persisted key-value snapshot row.
type Slot struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Slot) TableName() string { return "kv_slots" }
