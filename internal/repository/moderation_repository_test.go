package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tullo/guardian/internal/database"
	"github.com/tullo/guardian/internal/models"
)

// openTestDB connects to TEST_DATABASE_DSN; the tests are skipped without it.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := database.NewPostgresDB(dsn)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db.DB, nil))
	t.Cleanup(func() {
		_, _ = db.Exec("TRUNCATE audit_logs, review_queue")
		db.Close()
	})
	return db
}

func TestModerationRepository_AuditLog(t *testing.T) {
	db := openTestDB(t)
	repo := NewModerationRepository(db)
	ctx := context.Background()

	reason := "Content contains harmful patterns"
	err := repo.CreateAuditLogEntry(ctx, &models.AuditLogEntry{
		ID:          uuid.New(),
		AuthorID:    "author-1",
		ContentType: models.ContentTypePost,
		ContentHash: "abc",
		Action:      models.StatusRejected,
		RiskScore:   100,
		Flags:       []string{"self_harm_critical"},
		Reason:      &reason,
		Metadata:    map[string]any{"confidence": 0.8},
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	var flags int
	require.NoError(t, db.QueryRow("SELECT cardinality(flags) FROM audit_logs WHERE author_id = 'author-1'").Scan(&flags))
	assert.Equal(t, 1, flags)
}

func TestModerationRepository_ReviewQueueOrdering(t *testing.T) {
	db := openTestDB(t)
	repo := NewModerationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	low := &models.ReviewQueueEntry{ID: uuid.New(), AuthorID: "a", ContentType: models.ContentTypeComment, Content: "x",
		Result: models.ModerationResult{Status: models.StatusFlagged, RiskScore: 5, Flags: []string{}}, Priority: models.PriorityLow, QueuedAt: now}
	high := &models.ReviewQueueEntry{ID: uuid.New(), AuthorID: "b", ContentType: models.ContentTypePost, Content: "y",
		Result: models.ModerationResult{Status: models.StatusPendingReview, RiskScore: 24, Flags: []string{"bullying_low"}}, Priority: models.PriorityHigh, QueuedAt: now.Add(time.Second)}

	require.NoError(t, repo.CreateReviewQueueEntry(ctx, low))
	require.NoError(t, repo.CreateReviewQueueEntry(ctx, high))

	entries, err := repo.ListReviewQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, high.ID, entries[0].ID)
	assert.Equal(t, []string{"bullying_low"}, entries[0].Result.Flags)

	require.NoError(t, repo.ResolveReviewQueueEntry(ctx, high.ID))
	assert.ErrorIs(t, repo.ResolveReviewQueueEntry(ctx, high.ID), ErrNotFound)

	_, err = repo.GetReviewQueueEntry(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
