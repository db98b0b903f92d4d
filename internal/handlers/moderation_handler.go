package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/models"
	"github.com/tullo/guardian/internal/moderation"
	"github.com/tullo/guardian/internal/repository"
)

// Moderator produces verdicts.
type Moderator interface {
	Moderate(ctx context.Context, req models.ModerationRequest) (*models.ModerationResult, error)
}

// ReviewQueue is the read side of the human review queue.
type ReviewQueue interface {
	ListReviewQueue(ctx context.Context, limit int) ([]models.ReviewQueueEntry, error)
	ResolveReviewQueueEntry(ctx context.Context, id uuid.UUID) error
}

type ModerationHandler struct {
	moderator Moderator
	queue     ReviewQueue
	log       *zap.Logger
}

func NewModerationHandler(moderator Moderator, queue ReviewQueue, log *zap.Logger) *ModerationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModerationHandler{
		moderator: moderator,
		queue:     queue,
		log:       log.With(zap.String("module", "handlers")),
	}
}

// Moderate scores one piece of content
func (h *ModerationHandler) Moderate(c *gin.Context) {
	var req models.ModerateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.moderator.Moderate(c.Request.Context(), toModerationRequest(req))
	if err != nil {
		if errors.Is(err, moderation.ErrInvalidRequest) {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("moderation failed", zap.String("author_id", req.UserID), zap.Error(err))
		ErrorResponse(c, http.StatusInternalServerError, "Moderation failed")
		return
	}

	c.JSON(http.StatusOK, models.ModerateContentResponse{
		Success:    true,
		Moderation: result,
	})
}

// Vocabulary returns the safe vocabulary and suggested phrases
func (h *ModerationHandler) Vocabulary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"vocabulary": moderation.SafeVocabulary(),
		"phrases":    moderation.SafePhrases(c.Query("scenario")),
		"scenarios":  moderation.Scenarios(),
	})
}

// ReviewQueue lists content waiting for a moderator
func (h *ModerationHandler) ReviewQueue(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.queue.ListReviewQueue(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("failed to list review queue", zap.Error(err))
		ErrorResponse(c, http.StatusInternalServerError, "Failed to load review queue")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// ResolveReview removes an entry from the pending queue
func (h *ModerationHandler) ResolveReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid entry id")
		return
	}

	if err := h.queue.ResolveReviewQueueEntry(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Review entry not found")
			return
		}
		h.log.Error("failed to resolve review entry", zap.String("entry_id", id.String()), zap.Error(err))
		ErrorResponse(c, http.StatusInternalServerError, "Failed to resolve review entry")
		return
	}

	c.Status(http.StatusNoContent)
}

func toModerationRequest(req models.ModerateContentRequest) models.ModerationRequest {
	var refs []string
	for _, ref := range []string{req.ImageURL, req.VideoURL} {
		if strings.TrimSpace(ref) != "" {
			refs = append(refs, ref)
		}
	}
	return models.ModerationRequest{
		Content:     req.Content,
		ContentType: models.ContentType(req.Type),
		AuthorID:    req.UserID,
		MediaRefs:   refs,
	}
}
