package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tullo/guardian/internal/database"
	"github.com/tullo/guardian/internal/models"
)

const (
	defaultQueueLimit = 50
	maxQueueLimit     = 200
)

var ErrNotFound = errors.New("not found")

type ModerationRepository struct {
	db *database.DB
}

func NewModerationRepository(db *database.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// CreateAuditLogEntry records a verdict
func (r *ModerationRepository) CreateAuditLogEntry(ctx context.Context, entry *models.AuditLogEntry) error {
	meta := sql.NullString{}
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	flags := entry.Flags
	if flags == nil {
		flags = []string{}
	}

	query := `INSERT INTO audit_logs (id, author_id, content_type, content_hash, action, risk_score, flags, reason, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.AuthorID, entry.ContentType, entry.ContentHash, entry.Action,
		entry.RiskScore, pq.Array(flags), entry.Reason, meta, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log entry: %w", err)
	}
	return nil
}

// CreateReviewQueueEntry queues content for a human moderator
func (r *ModerationRepository) CreateReviewQueueEntry(ctx context.Context, entry *models.ReviewQueueEntry) error {
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode review result: %w", err)
	}

	query := `INSERT INTO review_queue (id, author_id, content_type, content, result, priority, priority_rank, queued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.AuthorID, entry.ContentType, entry.Content, string(result),
		entry.Priority, entry.Priority.Rank(), entry.QueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review queue entry: %w", err)
	}
	return nil
}

// ListReviewQueue returns pending entries, most urgent first
func (r *ModerationRepository) ListReviewQueue(ctx context.Context, limit int) ([]models.ReviewQueueEntry, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}

	query := `SELECT id, author_id, content_type, content, result, priority, queued_at
		FROM review_queue WHERE status = 'pending'
		ORDER BY priority_rank DESC, queued_at ASC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review queue: %w", err)
	}
	defer rows.Close()

	res := []models.ReviewQueueEntry{}
	for rows.Next() {
		e, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	return res, rows.Err()
}

// GetReviewQueueEntry loads one entry by id
func (r *ModerationRepository) GetReviewQueueEntry(ctx context.Context, id uuid.UUID) (*models.ReviewQueueEntry, error) {
	query := `SELECT id, author_id, content_type, content, result, priority, queued_at FROM review_queue WHERE id = $1`
	e, err := scanReviewEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ResolveReviewQueueEntry removes an entry from the pending queue
func (r *ModerationRepository) ResolveReviewQueueEntry(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE review_queue SET status = 'resolved' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve review queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve review queue entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReviewEntry(row rowScanner) (*models.ReviewQueueEntry, error) {
	var e models.ReviewQueueEntry
	var result []byte
	if err := row.Scan(&e.ID, &e.AuthorID, &e.ContentType, &e.Content, &result, &e.Priority, &e.QueuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan review queue entry: %w", err)
	}
	if err := json.Unmarshal(result, &e.Result); err != nil {
		return nil, fmt.Errorf("failed to decode review result: %w", err)
	}
	return &e, nil
}
