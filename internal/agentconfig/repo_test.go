package agentconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_SaveSyncedInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT external_assistant_id\\s+FROM agent_configs").
		WithArgs("t1", "inbound").
		WillReturnRows(sqlmock.NewRows([]string{"external_assistant_id"}).AddRow(nil))
	mock.ExpectExec("UPDATE agent_configs").
		WithArgs("t1", "inbound", "prompt", "11labs:rachel", "asst_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresRepo(db, 0)
	_, err = repo.SaveSynced(context.Background(), AgentConfig{
		TenantID: "t1", Role: RoleInbound, SystemPrompt: "prompt", VoiceSelector: "11labs:rachel",
		ExternalAssistantID: "asst_1", LastSyncedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveSyncedRejectsForeignAssistant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT external_assistant_id").
		WillReturnRows(sqlmock.NewRows([]string{"external_assistant_id"}).AddRow("asst_other"))
	mock.ExpectRollback()

	_, err = NewPostgresRepo(db, 0).SaveSynced(context.Background(), AgentConfig{
		TenantID: "t1", Role: RoleInbound, ExternalAssistantID: "asst_1", LastSyncedAt: &now,
	})
	assert.True(t, errors.Is(err, ErrInconsistentConfig))
	require.NoError(t, mock.ExpectationsWereMet())
}
