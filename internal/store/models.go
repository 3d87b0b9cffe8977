package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Page is a changelog page owned by a user.
type Page struct {
	ID          string
	OwnerID     string
	Slug        string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Post is a single changelog entry on a page.
type Post struct {
	ID          string
	PageID      string
	Title       string
	Content     string
	Tags        []string
	Status      string // draft, published
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Board is a public roadmap attached to a page.
type Board struct {
	ID        string
	PageID    string
	Title     string
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BoardColumn is a named stage on a board ("Planned", "In Progress", ...).
type BoardColumn struct {
	ID        string
	BoardID   string
	Name      string
	SortOrder int
	CreatedAt time.Time
}

// RoadmapItem is one card on a board. Position defines display order
// within its column and is unique per column at rest.
type RoadmapItem struct {
	ID          string
	BoardID     string
	ColumnID    string
	Position    int
	Title       string
	Description string
	CategoryID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Read-only aggregates attached for display.
	VoteCount     int
	CategoryName  string
	CategoryColor string
}

// Category labels roadmap items (name + display color).
type Category struct {
	ID      string
	BoardID string
	Name    string
	Color   string
}

// TriageItem is a visitor-submitted idea awaiting review. Promotion
// creates a RoadmapItem appended to the board's first column.
type TriageItem struct {
	ID          string
	BoardID     string
	Title       string
	Description string
	SubmitterIP string
	Status      string // pending, promoted, dismissed
	CreatedAt   time.Time
}

// Subscriber receives email notifications when a page publishes a post.
type Subscriber struct {
	ID        string
	PageID    string
	Email     string
	Confirmed bool
	CreatedAt time.Time
}

// Subscription mirrors the Stripe subscription state for a user.
type Subscription struct {
	ID               string
	UserID           string
	StripeCustomerID string
	StripeSubID      string
	Status           string // active, past_due, canceled
	PriceID          string
	CurrentPeriodEnd *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GitHubInstallation links a GitHub App installation to a page so merged
// pull requests can be turned into draft posts.
type GitHubInstallation struct {
	ID             string
	PageID         string
	InstallationID int64
	RepoFullName   string
	CreatedAt      time.Time
}

// PostRevision is one archived revision of a published post.
type PostRevision struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
