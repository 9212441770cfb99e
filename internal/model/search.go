package model

import "time"

// SearchResult is one ranked hit from the search engine.
type SearchResult struct {
	Article    *Article `json:"article"`
	Score      int      `json:"score"`
	Confidence int      `json:"confidence"`
}

// SearchLogEntry is one recorded search, kept for gap analytics only.
// The log is bounded; entries are advisory, never authoritative.
type SearchLogEntry struct {
	ID             string         `json:"id"`
	Query          string         `json:"query"`
	Timestamp      time.Time      `json:"timestamp"`
	ResultsFound   bool           `json:"results_found"`
	ArticleID      *int           `json:"article_id,omitempty"`
	ResultCount    int            `json:"result_count"`
	Classification Classification `json:"classification,omitempty"`
}

// KnowledgeGap is a recurring failed query grouped by normalized text.
type KnowledgeGap struct {
	Query      string    `json:"query"`
	Frequency  int       `json:"frequency"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Categories []string  `json:"categories,omitempty"`
	Priority   string    `json:"priority"` // high, medium, low
}

// TopicCount is a query with its search frequency.
type TopicCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SearchAnalytics is the aggregate search report over a lookback window.
type SearchAnalytics struct {
	TotalSearches      int            `json:"total_searches"`
	SuccessfulSearches int            `json:"successful_searches"`
	FailedSearches     int            `json:"failed_searches"`
	SuccessRate        float64        `json:"success_rate"`
	AvgResultsPerQuery float64        `json:"avg_results_per_search"`
	KnowledgeGaps      []KnowledgeGap `json:"knowledge_gaps"`
	MostSearched       []TopicCount   `json:"most_searched"`
}

// DailyTrend is one day's search volume in a trend report.
type DailyTrend struct {
	Date        string  `json:"date"`
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Trends is the per-day rollup of recent search activity.
type Trends struct {
	PeriodDays       int          `json:"period_days"`
	DailyTrends      []DailyTrend `json:"daily_trends"`
	AvgDailySearches float64      `json:"avg_daily_searches"`
}

// Expansion is the reasoning service's expansion of a search query.
type Expansion struct {
	OriginalQuery   string   `json:"original_query"`
	ExpandedQueries []string `json:"expanded_queries"`
	Keywords        []string `json:"keywords"`
	Intent          string   `json:"intent"`
}
