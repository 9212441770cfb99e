// Package model defines the core knowledge-base data types.
package model

import "time"

// Article is a versioned KB entry describing a problem, its solution,
// and the ordered steps to resolve it.
type Article struct {
	ID             int               `json:"id"`
	Title          string            `json:"title"`
	Problem        string            `json:"problem"`
	Solution       string            `json:"solution"`
	Steps          []string          `json:"steps,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Category       string            `json:"category,omitempty"`
	SubCategory    string            `json:"sub_category,omitempty"`
	Syndicator     string            `json:"syndicator,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	LastUsed       *time.Time        `json:"last_used,omitempty"`
	Version        int               `json:"version"`
	VersionHistory []VersionSnapshot `json:"version_history,omitempty"`
	UsageCount     int               `json:"usage_count"`
	SuccessCount   int               `json:"success_count"`
	SuccessRate    float64           `json:"success_rate"`
	Upvotes        int               `json:"upvotes"`
	Downvotes      int               `json:"downvotes"`
	VoteScore      int               `json:"vote_score"`
	Embedding      []float32         `json:"embedding,omitempty"`
	EdgeCases      []EdgeCase        `json:"edge_cases,omitempty"`
	ExampleTickets []ExampleTicket   `json:"example_tickets,omitempty"`
}

// VersionSnapshot records an article's state before a mutation.
// Snapshots are immutable; rollback appends, it never removes.
type VersionSnapshot struct {
	Version       int           `json:"version"`
	Timestamp     time.Time     `json:"timestamp"`
	ChangeReason  string        `json:"change_reason"`
	PreviousState PreviousState `json:"previous_state"`
}

// PreviousState is the subset of article fields captured per snapshot.
type PreviousState struct {
	Title       string   `json:"title"`
	Problem     string   `json:"problem"`
	Solution    string   `json:"solution"`
	Steps       []string `json:"steps,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	SuccessRate float64  `json:"success_rate"`
	UsageCount  int      `json:"usage_count"`
}

// EdgeCase is an additive annotation reported against an article.
type EdgeCase struct {
	Scenario   string    `json:"scenario"`
	Note       string    `json:"note,omitempty"`
	ReportedBy string    `json:"reported_by"`
	Date       time.Time `json:"date"`
}

// ExampleTicket links a real resolved ticket to the article that
// (roughly) covered it.
type ExampleTicket struct {
	TicketID         string    `json:"ticket_id,omitempty"`
	Summary          string    `json:"summary"`
	ResolutionWorked bool      `json:"resolution_worked"`
	ActualResolution string    `json:"actual_resolution,omitempty"`
	Date             time.Time `json:"date"`
}

// ArticleUpdate carries the content fields an update may change.
// Nil pointers leave the field untouched.
type ArticleUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Problem     *string   `json:"problem,omitempty"`
	Solution    *string   `json:"solution,omitempty"`
	Steps       *[]string `json:"steps,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Category    *string   `json:"category,omitempty"`
	SubCategory *string   `json:"sub_category,omitempty"`
	Syndicator  *string   `json:"syndicator,omitempty"`
	Provider    *string   `json:"provider,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ArticleUpdate) Empty() bool {
	return u.Title == nil && u.Problem == nil && u.Solution == nil &&
		u.Steps == nil && u.Tags == nil && u.Category == nil &&
		u.SubCategory == nil && u.Syndicator == nil && u.Provider == nil
}
