package documents

import (
	"time"

	"legalai-backend/openai"
)

// Document statuses follow the analysis lifecycle.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Content    string    `json:"-"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	FileURL    string    `json:"file_url"`
	StorageID  string    `json:"-"`
	PageCount  int       `json:"page_count"`
	WordCount  int       `json:"word_count"`
	TokensUsed int       `json:"tokens_used"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Overall review verdicts, worst clause category wins.
const (
	VerdictGood        = "good"
	VerdictConcerning  = "concerning"
	VerdictProblematic = "problematic"
)

type AIReview struct {
	ID                 int             `json:"id"`
	DocumentID         string          `json:"document_id"`
	Summary            string          `json:"summary"`
	GoodClauses        []openai.Clause `json:"good_clauses"`
	ConcerningClauses  []openai.Clause `json:"concerning_clauses"`
	ProblematicClauses []openai.Clause `json:"problematic_clauses"`
	LegalImplications  string          `json:"legal_implications"`
	OverallStatus      string          `json:"overall_status"`
	CreatedAt          time.Time       `json:"created_at"`
}

// DeriveOverallStatus picks the verdict from the flagged clause counts.
func DeriveOverallStatus(r *openai.ReviewResult) string {
	switch {
	case len(r.ProblematicClauses) > 0:
		return VerdictProblematic
	case len(r.ConcerningClauses) > 0:
		return VerdictConcerning
	}
	return VerdictGood
}

const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

type Feedback struct {
	ID           int       `json:"id"`
	UserID       string    `json:"user_id"`
	DocumentID   string    `json:"document_id"`
	AIReviewID   int       `json:"ai_review_id"`
	FeedbackType string    `json:"feedback_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
