package documents

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"legalai-backend/openai"
)

// ErrInsufficientTokens is returned when the debit would take the balance
// below zero; the caller maps it to a payment-required response.
var ErrInsufficientTokens = errors.New("insufficient tokens")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateAndDebit inserts the document row and charges the token cost in one
// transaction. The conditional UPDATE keeps the balance from going negative
// under concurrent uploads; zero rows affected means the user could not pay.
func (r *Repository) CreateAndDebit(doc *Document, cost int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE users SET tokens = tokens - ?, updated_at = NOW() WHERE id = ? AND tokens >= ?",
		cost, doc.UserID, cost,
	)
	if err != nil {
		return fmt.Errorf("debit tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientTokens
	}

	_, err = tx.Exec(`INSERT INTO documents
		(id, user_id, name, content, file_type, file_size, file_url, storage_id, page_count, word_count, tokens_used, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Name, doc.Content, doc.FileType, doc.FileSize,
		doc.FileURL, doc.StorageID, doc.PageCount, doc.WordCount, cost, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	doc.TokensUsed = cost
	doc.Status = StatusPending
	return nil
}

func (r *Repository) UpdateStatus(docID, status string) error {
	_, err := r.db.Exec("UPDATE documents SET status = ?, updated_at = NOW() WHERE id = ?", status, docID)
	return err
}

// SaveReview upserts the analysis result and marks the document completed.
func (r *Repository) SaveReview(docID string, result *openai.ReviewResult) (*AIReview, error) {
	good, err := json.Marshal(result.GoodClauses)
	if err != nil {
		return nil, err
	}
	concerning, err := json.Marshal(result.ConcerningClauses)
	if err != nil {
		return nil, err
	}
	problematic, err := json.Marshal(result.ProblematicClauses)
	if err != nil {
		return nil, err
	}
	overall := DeriveOverallStatus(result)

	_, err = r.db.Exec(`INSERT INTO ai_reviews
		(document_id, summary, good_clauses, concerning_clauses, problematic_clauses, legal_implications, overall_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			summary = VALUES(summary),
			good_clauses = VALUES(good_clauses),
			concerning_clauses = VALUES(concerning_clauses),
			problematic_clauses = VALUES(problematic_clauses),
			legal_implications = VALUES(legal_implications),
			overall_status = VALUES(overall_status)`,
		docID, result.Summary, good, concerning, problematic, result.LegalImplications, overall,
	)
	if err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	if err := r.UpdateStatus(docID, StatusCompleted); err != nil {
		return nil, err
	}
	return r.GetReviewByDocument(docID)
}

func (r *Repository) GetReviewByDocument(docID string) (*AIReview, error) {
	row := r.db.QueryRow(`SELECT id, document_id, summary,
		IFNULL(good_clauses, '[]'), IFNULL(concerning_clauses, '[]'), IFNULL(problematic_clauses, '[]'),
		IFNULL(legal_implications, ''), overall_status, created_at
		FROM ai_reviews WHERE document_id = ? LIMIT 1`, docID)
	return scanReview(row)
}

func scanReview(row *sql.Row) (*AIReview, error) {
	var rev AIReview
	var good, concerning, problematic []byte
	err := row.Scan(&rev.ID, &rev.DocumentID, &rev.Summary, &good, &concerning,
		&problematic, &rev.LegalImplications, &rev.OverallStatus, &rev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(good, &rev.GoodClauses); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(concerning, &rev.ConcerningClauses); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(problematic, &rev.ProblematicClauses); err != nil {
		return nil, err
	}
	return &rev, nil
}

const documentColumns = `id, user_id, name, IFNULL(content, ''), file_type, file_size, file_url, storage_id,
	page_count, word_count, tokens_used, status, created_at, updated_at`

func (r *Repository) scanDocument(scan func(dest ...interface{}) error) (*Document, error) {
	var d Document
	err := scan(&d.ID, &d.UserID, &d.Name, &d.Content, &d.FileType, &d.FileSize,
		&d.FileURL, &d.StorageID, &d.PageCount, &d.WordCount, &d.TokensUsed,
		&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByID returns the document when it belongs to userID, nil when absent.
func (r *Repository) GetByID(docID, userID string) (*Document, error) {
	row := r.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE id = ? AND user_id = ? LIMIT 1", docID, userID)
	doc, err := r.scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (r *Repository) ListByUser(userID string) ([]*Document, error) {
	rows, err := r.db.Query("SELECT "+documentColumns+" FROM documents WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		doc, err := r.scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes the document row and returns the deleted record so the
// caller can clean up the stored blob. Spent tokens are not refunded.
func (r *Repository) Delete(docID, userID string) (*Document, error) {
	doc, err := r.GetByID(docID, userID)
	if err != nil || doc == nil {
		return nil, err
	}
	if _, err := r.db.Exec("DELETE FROM documents WHERE id = ? AND user_id = ?", docID, userID); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpsertFeedback records a thumbs verdict, replacing any earlier one from the
// same user on the same review.
func (r *Repository) UpsertFeedback(userID, docID string, reviewID int, feedbackType string) error {
	_, err := r.db.Exec(`INSERT INTO feedback (user_id, document_id, ai_review_id, feedback_type)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE feedback_type = VALUES(feedback_type), updated_at = NOW()`,
		userID, docID, reviewID, feedbackType,
	)
	return err
}

func (r *Repository) GetFeedback(userID string, reviewID int) (*Feedback, error) {
	row := r.db.QueryRow(`SELECT id, user_id, document_id, ai_review_id, feedback_type, created_at, updated_at
		FROM feedback WHERE user_id = ? AND ai_review_id = ? LIMIT 1`, userID, reviewID)
	var f Feedback
	err := row.Scan(&f.ID, &f.UserID, &f.DocumentID, &f.AIReviewID, &f.FeedbackType, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UserTokens reads the current balance; used for the shortfall response.
func (r *Repository) UserTokens(userID string) (int, error) {
	var tokens int
	err := r.db.QueryRow("SELECT tokens FROM users WHERE id = ?", userID).Scan(&tokens)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user %s not found", userID)
	}
	return tokens, err
}
