package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offertesting/outreach_services/internal/digest_service/domain"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testSlot   = time.Date(2026, time.October, 14, 16, 0, 0, 0, time.UTC)
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

func TestPgDigestRepository_Enqueue(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewPgDigestRepository(mockPool, testLogger)
	e := domain.Entry{
		ID:         uuid.New(),
		Type:       domain.TypeMessageFailed,
		OutreachID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Channel:    "email",
		Recipient:  "jane@example.com",
		Detail:     "mailbox full",
		CreatedAt:  testSlot,
	}
	mockPool.ExpectExec(`INSERT INTO digest_queue`).
		WithArgs(e.ID, "message_failed", e.OutreachID, uuid.NullUUID{}, "email", "jane@example.com", "mailbox full", testSlot).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Enqueue(context.Background(), e))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgDigestRepository_ListQueued(t *testing.T) {
	cols := []string{"id", "type", "outreach_id", "campaign_id", "channel", "recipient", "detail", "created_at"}
	listSQL := `FROM digest_queue WHERE \$1::timestamptz IS NULL OR \(created_at, id\) > \(\$1, \$2::uuid\) ORDER BY created_at ASC, id ASC LIMIT \$3`

	t.Run("head of the queue", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		id := uuid.New()
		rows := mockPool.NewRows(cols).
			AddRow(id, "provider_error", uuid.NullUUID{}, uuid.NullUUID{}, "linkedin_dm", "", "auth expired", testSlot)
		mockPool.ExpectQuery(listSQL).WithArgs((*time.Time)(nil), (*uuid.UUID)(nil), 500).WillReturnRows(rows)

		entries, err := repo.ListQueued(context.Background(), nil, 500)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.TypeProviderError, entries[0].Type)
		assert.Equal(t, "auth expired", entries[0].Detail)
	})

	t.Run("after a cursor", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		cursor := &domain.QueueCursor{CreatedAt: testSlot, ID: uuid.New()}
		mockPool.ExpectQuery(listSQL).WithArgs(&cursor.CreatedAt, &cursor.ID, 500).WillReturnRows(mockPool.NewRows(cols))

		entries, err := repo.ListQueued(context.Background(), cursor, 500)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgDigestRepository_DeleteEntries(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewPgDigestRepository(mockPool, testLogger)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	mockPool.ExpectExec(`DELETE FROM digest_queue WHERE id = ANY\(\$1\)`).WithArgs(ids).WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.DeleteEntries(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteEntries(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgDigestRepository_LastDigestAt(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		last := testSlot
		mockPool.ExpectQuery(`SELECT last_digest_at FROM digest_metadata WHERE id = 1`).
			WillReturnRows(mockPool.NewRows([]string{"last_digest_at"}).AddRow(&last))

		got, err := repo.LastDigestAt(context.Background())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Equal(testSlot))
	})

	t.Run("metadata row missing", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		mockPool.ExpectQuery(`FROM digest_metadata`).WillReturnError(pgx.ErrNoRows)

		got, err := repo.LastDigestAt(context.Background())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestPgDigestRepository_ClaimSlot(t *testing.T) {
	previous := testSlot.Add(-3 * time.Hour)
	claimSQL := `ON CONFLICT \(id\) DO UPDATE SET last_digest_at = EXCLUDED.last_digest_at WHERE digest_metadata.last_digest_at IS NOT DISTINCT FROM \$2`

	t.Run("won", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		mockPool.ExpectExec(claimSQL).WithArgs(testSlot, &previous).WillReturnResult(pgxmock.NewResult("INSERT", 1))

		ok, err := repo.ClaimSlot(context.Background(), &previous, testSlot)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lost", func(t *testing.T) {
		mockPool := newMockPool(t)
		repo := NewPgDigestRepository(mockPool, testLogger)
		mockPool.ExpectExec(claimSQL).WithArgs(testSlot, (*time.Time)(nil)).WillReturnResult(pgxmock.NewResult("INSERT", 0))

		ok, err := repo.ClaimSlot(context.Background(), nil, testSlot)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPgDigestRepository_ReleaseSlot(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewPgDigestRepository(mockPool, testLogger)
	mockPool.ExpectExec(`UPDATE digest_metadata SET last_digest_at = \$2 WHERE id = 1 AND last_digest_at = \$1`).
		WithArgs(testSlot, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.ReleaseSlot(context.Background(), testSlot, nil))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
