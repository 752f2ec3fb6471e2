package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLog_NilIsNoop(t *testing.T) {
	assert.Nil(t, NewMessageLog(nil))
	var l *MessageLog
	assert.NoError(t, l.Record(context.Background(), LogEntry{}))
	n, err := l.PurgeContact(context.Background(), "x")
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestMessageLog_RecordDefaultsStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	l := NewMessageLog(db)

	mock.ExpectExec("INSERT INTO message_logs").
		WithArgs(DirectionIn, "whatsapp", "whatsapp:+5218110000001", "", "hola", "queued").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, l.Record(context.Background(), LogEntry{
		Direction: DirectionIn, Channel: "whatsapp", Contact: "whatsapp:+5218110000001", Payload: "hola",
	}))

	mock.ExpectExec("INSERT INTO message_logs").WillReturnError(errors.New("boom"))
	assert.Error(t, l.Record(context.Background(), LogEntry{Direction: DirectionOut}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageLog_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	l := NewMessageLog(db)

	now := time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "direction", "channel", "contact", "template", "payload", "status", "created_at"}).
		AddRow(int64(2), "out", "whatsapp", "c1", "text", "respuesta", "sent", now).
		AddRow(int64(1), "in", "whatsapp", "c1", "", "hola", "received", now.Add(-time.Minute))
	mock.ExpectQuery("SELECT id, direction, channel, contact, template, payload, status, created_at\\s+FROM message_logs").
		WithArgs("c1", 20).
		WillReturnRows(rows)

	got, err := l.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "respuesta", got[0].Payload)
	assert.Equal(t, DirectionIn, got[1].Direction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageLog_PurgeContact(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM message_logs WHERE contact = \\$1").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := NewMessageLog(db).PurgeContact(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
