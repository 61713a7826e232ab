// Package helpdesk is the typed resource layer over the opsdesk REST API.
// Every read goes through the query cache under its canonical key and
// per-resource staleness policy; every mutation declares the cache prefixes
// it invalidates and applies them strictly after the backend confirms
// success.
package helpdesk

import "time"

// Ticket statuses used by the workflow.
const (
	StatusOpen     = "open"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusClosed   = "closed"
)

// Ticket is a support ticket as returned by the backend.
type Ticket struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Requester   string    `json:"requester"`
	Assignee    string    `json:"assignee,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Comment is a discussion entry on a ticket.
type Comment struct {
	ID        int       `json:"id"`
	TicketID  int       `json:"ticket_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an account visible to admins.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// DashboardStats is the aggregate view on the landing dashboard.
type DashboardStats struct {
	OpenTickets        int     `json:"open_tickets"`
	PendingApproval    int     `json:"pending_approval"`
	ResolvedToday      int     `json:"resolved_today"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// MonthlyReport is the per-month aggregate used by the report view.
type MonthlyReport struct {
	Year       int            `json:"year"`
	Month      int            `json:"month"`
	Created    int            `json:"created"`
	Resolved   int            `json:"resolved"`
	Rejected   int            `json:"rejected"`
	ByCategory map[string]int `json:"by_category"`
}

// NewTicket is the creation payload.
type NewTicket struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
