package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpulse/outreach/internal/dispatch"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/ingest"
	"github.com/leadpulse/outreach/internal/service/enrollment"
	"github.com/leadpulse/outreach/internal/service/suppression"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Suppressions

func TestSuppressionRepo_IsSuppressed(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM suppressions`).
		WithArgs("org-1", "jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsSuppressed(context.Background(), "org-1", "jane@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	expectationsMet(t, mock)
}

func TestSuppressionRepo_SuppressKeepsFirstEntry(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSuppressionRepo(db)

	// Conflict path: 0 rows affected, still no error.
	mock.ExpectExec(`INSERT INTO suppressions .* ON CONFLICT \(organization_id, identity\) DO NOTHING`).
		WithArgs("sup-1", "org-1", "jane@example.com", domain.ChannelEmail, domain.ReasonHardBounce, domain.SourceDispatch).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Suppress(context.Background(), &domain.SuppressionEntry{
		ID:             "sup-1",
		OrganizationID: "org-1",
		Identity:       "jane@example.com",
		Channel:        domain.ChannelEmail,
		Reason:         domain.ReasonHardBounce,
		Source:         domain.SourceDispatch,
	})
	require.NoError(t, err)
	expectationsMet(t, mock)
}

func TestSuppressionRepo_RemoveMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSuppressionRepo(db)

	mock.ExpectExec(`DELETE FROM suppressions`).
		WithArgs("org-1", "ghost@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Remove(context.Background(), "org-1", "ghost@example.com")
	assert.ErrorIs(t, err, suppression.ErrNotFound)
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// Enrollments

func enrollmentRows(due time.Time, leasedBy string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "prospect_id", "sequence_id", "status", "stop_reason",
		"current_step", "steps_sent", "next_action_at", "enrolled_at", "paused_at", "completed_at",
		"leased_by", "lease_expires_at",
	}).AddRow(
		"enr-1", "org-1", "pro-1", "seq-1", "active", nil,
		0, 0, due, due.Add(-24*time.Hour), nil, nil,
		leasedBy, due.Add(2*time.Minute),
	)
}

func TestEnrollmentRepo_ClaimDue(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE enrollments SET leased_by = \$1.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs("worker-a", int64(120), 10).
		WillReturnRows(enrollmentRows(due, "worker-a"))

	claimed, err := repo.ClaimDue(context.Background(), "worker-a", 10, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	e := claimed[0]
	assert.Equal(t, "enr-1", e.ID)
	assert.Equal(t, domain.EnrollmentActive, e.Status)
	require.NotNil(t, e.LeasedBy)
	assert.Equal(t, "worker-a", *e.LeasedBy)
	require.NotNil(t, e.NextActionAt)
	assert.True(t, e.NextActionAt.Equal(due))
	assert.Nil(t, e.StopReason)
	expectationsMet(t, mock)
}

func TestEnrollmentRepo_ReleaseLeaseScopedToHolder(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	mock.ExpectExec(`UPDATE enrollments SET leased_by = NULL`).
		WithArgs("enr-1", "worker-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseLease(context.Background(), "enr-1", "worker-a"))
	expectationsMet(t, mock)
}

func TestEnrollmentRepo_UpdateMissingRow(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	mock.ExpectExec(`UPDATE enrollments SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.Enrollment{
		ID:             "enr-missing",
		OrganizationID: "org-1",
		Status:         domain.EnrollmentActive,
	})
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
	expectationsMet(t, mock)
}

func TestEnrollmentRepo_UpdateClaimedGuardsStatusAndLease(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	worker := "worker-a"
	e := &domain.Enrollment{
		ID:             "enr-1",
		OrganizationID: "org-1",
		Status:         domain.EnrollmentActive,
		CurrentStep:    1,
	}

	mock.ExpectExec(`UPDATE enrollments SET status = .*status = 'active' AND leased_by = \$12`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateClaimed(context.Background(), e, worker))

	// A cascade stop landed first: zero rows match the guard.
	mock.ExpectExec(`UPDATE enrollments SET status = .*status = 'active' AND leased_by = \$12`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateClaimed(context.Background(), e, worker)
	assert.ErrorIs(t, err, enrollment.ErrClaimLost)
	expectationsMet(t, mock)
}

func TestEnrollmentRepo_GetByIDNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	mock.ExpectQuery(`SELECT .* FROM enrollments WHERE organization_id`).
		WithArgs("org-1", "enr-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "org-1", "enr-missing")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
	expectationsMet(t, mock)
}

func TestEnrollmentRepo_StopAllOpenForProspect(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEnrollmentRepo(db)

	mock.ExpectExec(`UPDATE enrollments SET status = 'stopped'`).
		WithArgs("org-1", "pro-1", domain.StopOptedOut).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.StopAllOpenForProspect(context.Background(), "org-1", "pro-1", domain.StopOptedOut)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// Interactions

func TestInteractionRepo_SentStepLookup(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepo(db)

	mock.ExpectQuery(`SELECT .* FROM interactions.*type = 'sent'`).
		WithArgs("org-1", "enr-1", 0).
		WillReturnError(sql.ErrNoRows)
	ix, err := repo.SentStep(context.Background(), "org-1", "enr-1", 0)
	require.NoError(t, err)
	assert.Nil(t, ix)

	sentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "prospect_id", "enrollment_id", "step_index",
		"channel", "direction", "type", "occurred_at", "payload", "provider_event_id",
	}).AddRow("ix-1", "org-1", "pro-1", "enr-1", 0,
		"email", "out", "sent", sentAt, []byte(`{}`), nil)
	mock.ExpectQuery(`SELECT .* FROM interactions.*type = 'sent'`).
		WithArgs("org-1", "enr-1", 0).
		WillReturnRows(rows)
	ix, err = repo.SentStep(context.Background(), "org-1", "enr-1", 0)
	require.NoError(t, err)
	require.NotNil(t, ix)
	assert.Equal(t, domain.InteractionSent, ix.Type)
	assert.True(t, ix.OccurredAt.Equal(sentAt))
	expectationsMet(t, mock)
}

func TestInteractionRepo_DuplicateSentMapsToSentinel(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepo(db)

	mock.ExpectExec(`INSERT INTO interactions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: constraintStepSent})

	step := 0
	enrID := "enr-1"
	err := repo.Insert(context.Background(), &domain.Interaction{
		ID:             "ix-1",
		OrganizationID: "org-1",
		ProspectID:     "pro-1",
		EnrollmentID:   &enrID,
		StepIndex:      &step,
		Channel:        domain.ChannelEmail,
		Direction:      domain.DirectionOut,
		Type:           domain.InteractionSent,
		OccurredAt:     time.Now().UTC(),
	})
	assert.ErrorIs(t, err, dispatch.ErrDuplicateSend)
	expectationsMet(t, mock)
}

func TestInteractionRepo_DuplicateProviderEventMapsToSentinel(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepo(db)

	mock.ExpectExec(`INSERT INTO interactions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: constraintProviderEvent})

	evtID := "evt-123"
	err := repo.Insert(context.Background(), &domain.Interaction{
		ID:              "ix-2",
		OrganizationID:  "org-1",
		ProspectID:      "pro-1",
		Channel:         domain.ChannelEmail,
		Direction:       domain.DirectionIn,
		Type:            domain.InteractionReplied,
		OccurredAt:      time.Now().UTC(),
		ProviderEventID: &evtID,
	})
	assert.ErrorIs(t, err, ingest.ErrDuplicateEvent)
	expectationsMet(t, mock)
}

func TestInteractionRepo_OtherUniqueViolationIsNotMasked(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepo(db)

	mock.ExpectExec(`INSERT INTO interactions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "interactions_pkey"})

	err := repo.Insert(context.Background(), &domain.Interaction{
		ID:             "ix-3",
		OrganizationID: "org-1",
		ProspectID:     "pro-1",
		Channel:        domain.ChannelEmail,
		Direction:      domain.DirectionOut,
		Type:           domain.InteractionSent,
		OccurredAt:     time.Now().UTC(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, dispatch.ErrDuplicateSend)
	assert.NotErrorIs(t, err, ingest.ErrDuplicateEvent)
	expectationsMet(t, mock)
}
