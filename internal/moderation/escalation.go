package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/metrics"
	"github.com/tullo/guardian/internal/models"
)

const defaultEscalationTimeout = 5 * time.Second

// EscalationStore is the persistence collaborator for verdict side effects.
type EscalationStore interface {
	CreateAuditLogEntry(ctx context.Context, entry *models.AuditLogEntry) error
	CreateReviewQueueEntry(ctx context.Context, entry *models.ReviewQueueEntry) error
}

// ReviewNotifier announces a freshly queued review entry to reviewers.
type ReviewNotifier interface {
	NotifyReviewQueued(ctx context.Context, entry *models.ReviewQueueEntry) error
}

// EscalationSink records audit entries and review queue entries without ever
// affecting the verdict returned to the caller.
type EscalationSink struct {
	store    EscalationStore
	notifier ReviewNotifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewEscalationSink(store EscalationStore, notifier ReviewNotifier, log *zap.Logger, m *metrics.Metrics) *EscalationSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &EscalationSink{
		store:    store,
		notifier: notifier,
		log:      log.With(zap.String("module", "escalation")),
		metrics:  m,
		timeout:  defaultEscalationTimeout,
		now:      time.Now,
	}
}

// Record persists the verdict in the background. It returns immediately.
func (s *EscalationSink) Record(ctx context.Context, req models.ModerationRequest, result *models.ModerationResult) {
	if s == nil || result == nil {
		return
	}
	snapshot := result.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("escalation panic", zap.Any("panic", r), zap.String("author_id", req.AuthorID))
			}
		}()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.record(wctx, req, snapshot)
	}()
}

// Wait blocks until every background write has finished.
func (s *EscalationSink) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *EscalationSink) record(ctx context.Context, req models.ModerationRequest, result *models.ModerationResult) {
	if s.store == nil {
		return
	}
	now := s.now()

	var reason *string
	if result.Reason != "" {
		r := result.Reason
		reason = &r
	}
	audit := &models.AuditLogEntry{
		ID:          uuid.New(),
		AuthorID:    req.AuthorID,
		ContentType: req.ContentType,
		ContentHash: ContentKey(req.Content, req.MediaRefs),
		Action:      result.Status,
		RiskScore:   result.RiskScore,
		Flags:       result.Flags,
		Reason:      reason,
		Metadata: map[string]any{
			"confidence":          result.Confidence,
			"requiresHumanReview": result.RequiresHumanReview,
			"mediaCount":          len(req.MediaRefs),
		},
		CreatedAt: now,
	}
	// The two writes are independent: losing one does not undo the other.
	if err := s.store.CreateAuditLogEntry(ctx, audit); err != nil {
		s.metrics.EscalationFailure("audit_log")
		s.log.Error("failed to write audit log entry", zap.String("author_id", req.AuthorID), zap.Error(err))
	}

	if !result.RequiresHumanReview {
		return
	}
	entry := &models.ReviewQueueEntry{
		ID:          uuid.New(),
		AuthorID:    req.AuthorID,
		ContentType: req.ContentType,
		Content:     req.Content,
		Result:      *result,
		Priority:    models.PriorityForScore(result.RiskScore),
		QueuedAt:    now,
	}
	if err := s.store.CreateReviewQueueEntry(ctx, entry); err != nil {
		s.metrics.EscalationFailure("review_queue")
		s.log.Error("failed to write review queue entry",
			zap.String("author_id", req.AuthorID),
			zap.String("priority", string(entry.Priority)),
			zap.Error(err),
		)
		return
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyReviewQueued(ctx, entry); err != nil {
		s.metrics.EscalationFailure("notify")
		s.log.Warn("failed to announce review queue entry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
	}
}
