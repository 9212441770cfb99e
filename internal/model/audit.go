package model

import "time"

// Audit actions. The set mirrors what the workflow and CLI record; the
// column is free-form so new actions don't need a migration.
const (
	AuditCreate   = "create"
	AuditUpdate   = "update"
	AuditDelete   = "delete"
	AuditRollback = "rollback"
	AuditEdgeCase = "edge_case"
	AuditNone     = "none"
)

// AuditEntry is one row of the append-only change ledger. Entries are
// never updated or deleted.
type AuditEntry struct {
	ID         int               `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	ArticleID  *int              `json:"article_id,omitempty"`
	User       string            `json:"user"`
	FeedbackID *int              `json:"feedback_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// AuditStats summarizes the ledger.
type AuditStats struct {
	TotalActions        int            `json:"total_actions"`
	ActionsByType       map[string]int `json:"actions_by_type"`
	MostActiveUser      string         `json:"most_active_user,omitempty"`
	MostModifiedArticle *int           `json:"most_modified_article,omitempty"`
	UniqueUsers         int            `json:"unique_users"`
	UniqueArticles      int            `json:"unique_articles"`
}
