package documents

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"legalai-backend/files"
	"legalai-backend/openai"
	"legalai-backend/quota"
	"legalai-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthUser is the minimal caller projection handlers need.
type AuthUser struct {
	ID    string
	Email string
	Name  string
}

var userResolver = func(token string) *AuthUser { return nil }

// RegisterUserResolver allows main to provide a bearer-token resolver.
func RegisterUserResolver(fn func(token string) *AuthUser) { userResolver = fn }

func currentUser(c *gin.Context) *AuthUser {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		return nil
	}
	return userResolver(token)
}

const maxUploadBytes = 10 << 20 // 10 MB

// Handler runs the upload pipeline: scan, charge tokens, store the blob and
// kick off the background analysis.
type Handler struct {
	repo     *Repository
	scanner  files.Scanner
	uploader storage.Uploader
	analyzer openai.Analyzer
}

func NewHandler(repo *Repository, scanner files.Scanner, uploader storage.Uploader, analyzer openai.Analyzer) *Handler {
	if scanner == nil {
		scanner = &files.LocalScanner{}
	}
	return &Handler{repo: repo, scanner: scanner, uploader: uploader, analyzer: analyzer}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/documents", h.upload)
	r.GET("/documents", h.list)
	r.GET("/documents/:id", h.get)
	r.DELETE("/documents/:id", h.remove)
	r.POST("/documents/:id/feedback", h.submitFeedback)
	r.GET("/documents/:id/feedback", h.getFeedback)
}

// upload accepts a multipart form with a "file" part and an optional
// "context" field describing the reader's situation. The token cost is
// charged before the analysis starts and is not refunded on failure.
func (h *Handler) upload(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10 MB limit"})
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	src.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10 MB limit"})
		return
	}
	docContext := c.PostForm("context")
	contentType := fileHeader.Header.Get("Content-Type")

	scan, err := h.scanner.Scan(fileHeader.Filename, contentType, data)
	if err != nil {
		log.Printf("[DOCS][scan] user=%s name=%s: %v", user.ID, fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan file"})
		return
	}
	if !scan.IsSuitable {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "document not suitable for analysis", "reason": scan.Reason})
		return
	}

	cost := quota.TokensRequired(scan.PageCount, scan.WordCount)
	balance, err := h.repo.UserTokens(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check token balance"})
		return
	}
	if !quota.HasSufficientTokens(balance, cost) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient tokens",
			"required":  cost,
			"available": balance,
			"shortfall": quota.Shortfall(balance, cost),
		})
		return
	}

	doc := &Document{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      fileHeader.Filename,
		Content:   scan.Content,
		FileType:  contentType,
		FileSize:  fileHeader.Size,
		PageCount: scan.PageCount,
		WordCount: scan.WordCount,
	}
	if h.uploader != nil {
		uploaded, err := h.uploader.UploadDocument(c.Request.Context(), user.ID, fileHeader.Filename, data)
		if err != nil {
			log.Printf("[DOCS][upload] user=%s name=%s: %v", user.ID, fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}
		doc.FileURL = uploaded.URL
		doc.StorageID = uploaded.PublicID
	}

	if err := h.repo.CreateAndDebit(doc, cost); err != nil {
		// The blob is orphaned otherwise; remove it before reporting failure.
		h.cleanupBlob(c.Request.Context(), doc.StorageID)
		if err == ErrInsufficientTokens {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient tokens", "required": cost})
			return
		}
		log.Printf("[DOCS][create] user=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
		return
	}
	log.Printf("[DOCS][create] user=%s doc=%s pages=%d words=%d cost=%d", user.ID, doc.ID, doc.PageCount, doc.WordCount, cost)

	go h.analyze(doc, docContext)

	c.JSON(http.StatusCreated, gin.H{"data": doc, "tokens_charged": cost})
}

func (h *Handler) cleanupBlob(ctx context.Context, storageID string) {
	if h.uploader == nil || storageID == "" {
		return
	}
	if err := h.uploader.DeleteDocument(ctx, storageID); err != nil {
		log.Printf("[DOCS][cleanup] storage_id=%s: %v", storageID, err)
	}
}

// analyze runs in the background after upload. The document ends up
// completed or failed; the charged tokens stay spent either way.
func (h *Handler) analyze(doc *Document, docContext string) {
	if h.analyzer == nil {
		log.Printf("[DOCS][analyze] doc=%s: analyzer not configured", doc.ID)
		_ = h.repo.UpdateStatus(doc.ID, StatusFailed)
		return
	}
	if err := h.repo.UpdateStatus(doc.ID, StatusProcessing); err != nil {
		log.Printf("[DOCS][analyze] doc=%s mark processing: %v", doc.ID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, err := h.analyzer.AnalyzeDocument(ctx, doc.Name, doc.Content, docContext)
	if err != nil {
		log.Printf("[DOCS][analyze] doc=%s: %v", doc.ID, err)
		_ = h.repo.UpdateStatus(doc.ID, StatusFailed)
		return
	}
	if _, err := h.repo.SaveReview(doc.ID, result); err != nil {
		log.Printf("[DOCS][analyze] doc=%s save: %v", doc.ID, err)
		_ = h.repo.UpdateStatus(doc.ID, StatusFailed)
		return
	}
	log.Printf("[DOCS][analyze] doc=%s completed status=%s", doc.ID, DeriveOverallStatus(result))
}

func (h *Handler) list(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	docs, err := h.repo.ListByUser(user.ID)
	if err != nil {
		log.Printf("[DOCS][list] user=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	if docs == nil {
		docs = []*Document{}
	}
	c.JSON(http.StatusOK, gin.H{"data": docs})
}

func (h *Handler) get(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	doc, err := h.repo.GetByID(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	review, err := h.repo.GetReviewByDocument(doc.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load review"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": doc, "review": review})
}

func (h *Handler) remove(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	doc, err := h.repo.Delete(c.Param("id"), user.ID)
	if err != nil {
		log.Printf("[DOCS][delete] user=%s doc=%s: %v", user.ID, c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	h.cleanupBlob(c.Request.Context(), doc.StorageID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) submitFeedback(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body struct {
		FeedbackType string `json:"feedback_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if body.FeedbackType != FeedbackThumbsUp && body.FeedbackType != FeedbackThumbsDown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback_type must be thumbs_up or thumbs_down"})
		return
	}
	doc, err := h.repo.GetByID(c.Param("id"), user.ID)
	if err != nil || doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	review, err := h.repo.GetReviewByDocument(doc.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load review"})
		return
	}
	if review == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "document has no review yet"})
		return
	}
	if err := h.repo.UpsertFeedback(user.ID, doc.ID, review.ID, body.FeedbackType); err != nil {
		log.Printf("[DOCS][feedback] user=%s doc=%s: %v", user.ID, doc.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) getFeedback(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	doc, err := h.repo.GetByID(c.Param("id"), user.ID)
	if err != nil || doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	review, err := h.repo.GetReviewByDocument(doc.ID)
	if err != nil || review == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	fb, err := h.repo.GetFeedback(user.ID, review.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fb})
}
