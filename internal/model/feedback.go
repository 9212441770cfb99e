package model

import "time"

// Feedback status values. A feedback item leaves Pending at most once.
const (
	StatusPending   = "pending"
	StatusApplied   = "applied"
	StatusDismissed = "dismissed"
)

// ValidStatuses are the allowed feedback states.
var ValidStatuses = map[string]bool{
	StatusPending:   true,
	StatusApplied:   true,
	StatusDismissed: true,
}

// TicketData is the slice of a help-desk ticket the KB workflow keeps.
type TicketData struct {
	TicketID    string `json:"ticket_id,omitempty"`
	Subject     string `json:"subject"`
	Text        string `json:"text"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	Syndicator  string `json:"syndicator,omitempty"`
	Provider    string `json:"provider,omitempty"`
	DealerName  string `json:"dealer_name,omitempty"`
}

// AgentFeedback is what the resolving agent reported.
type AgentFeedback struct {
	ActualSolution string `json:"actual_solution"`
	EdgeCase       string `json:"edge_case,omitempty"`
	AgentName      string `json:"agent_name"`
}

// FeedbackItem is a pending (or settled) report about how a ticket
// resolution went, queued for review before it mutates the KB.
type FeedbackItem struct {
	ID                 int             `json:"id"`
	Timestamp          time.Time       `json:"timestamp"`
	TicketData         TicketData      `json:"ticket_data"`
	MatchedArticleID   *int            `json:"matched_article_id,omitempty"`
	ResolutionWorked   bool            `json:"resolution_worked"`
	AgentFeedback      AgentFeedback   `json:"agent_feedback"`
	Status             string          `json:"status"`
	AuditNotes         string          `json:"audit_notes,omitempty"`
	Recommendation     *Recommendation `json:"ai_recommendation,omitempty"`
	RecommendationAt   *time.Time      `json:"recommendation_generated_at,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
}

// Recommendation actions.
const (
	ActionAddNew         = "add_new"
	ActionUpdateExisting = "update_existing"
	ActionRemove         = "remove"
	ActionNone           = "none"
)

// ValidActions are the recognized recommendation actions. Anything else
// is rejected on receipt rather than defaulted.
var ValidActions = map[string]bool{
	ActionAddNew:         true,
	ActionUpdateExisting: true,
	ActionRemove:         true,
	ActionNone:           true,
}

// Recommendation is the reasoning service's proposed KB mutation for a
// feedback item. Action is the discriminant; the other fields are
// action-specific.
type Recommendation struct {
	Action          string   `json:"action"`
	TargetID        *int     `json:"target_id,omitempty"`
	Confidence      int      `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	ProposedArticle *Article `json:"new_article,omitempty"`
}

// Classification is the ticket classifier's output, consumed as search
// context.
type Classification struct {
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	Syndicator  string `json:"syndicator,omitempty"`
	Provider    string `json:"provider,omitempty"`
	DealerName  string `json:"dealer_name,omitempty"`
}

// Empty reports whether no classification fields are set.
func (c Classification) Empty() bool {
	return c.Category == "" && c.SubCategory == "" && c.Syndicator == "" &&
		c.Provider == "" && c.DealerName == ""
}
