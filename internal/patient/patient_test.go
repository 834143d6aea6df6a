package patient

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisQueue(client, "aimar:patients:queue")
}

func TestQueueFIFO(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Ping(ctx))
	require.NoError(t, q.Enqueue(ctx, "p-1"))
	require.NoError(t, q.Enqueue(ctx, " p-2 "))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p-2", id)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueueRequeueGoesFirst(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "p-1"))
	require.NoError(t, q.Enqueue(ctx, "p-2"))

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(ctx, id))

	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)
}

func TestQueueRejectsEmptyID(t *testing.T) {
	_, q := setupTestQueue(t)
	assert.Error(t, q.Enqueue(context.Background(), "  "))
}

func TestQueueServerDown(t *testing.T) {
	mr, q := setupTestQueue(t)
	mr.Close()

	_, err := q.Dequeue(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQueueEmpty))
}

func TestQueueExternalProducer(t *testing.T) {
	mr, q := setupTestQueue(t)
	_, err := mr.RPush("aimar:patients:queue", "p-9")
	require.NoError(t, err)

	id, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-9", id)
}

func setupTestStore(t *testing.T) (sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewPostgresStore(db)
}

func TestQueryPatient(t *testing.T) {
	mock, store := setupTestStore(t)
	birth := time.Date(1950, 3, 14, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "mrn", "full_name", "room_number", "birth_date", "notes"}).
		AddRow("p-1", "MRN-77", "Alice", "5", birth, "")
	mock.ExpectQuery(regexp.QuoteMeta(queryPatient)).WithArgs("p-1").WillReturnRows(rows)

	r, err := store.QueryPatient(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", r.ID)
	assert.Equal(t, "5", r.RoomNumber)
	assert.Equal(t, "Alice", r.Info.Name)
	assert.Equal(t, "MRN-77", r.Info.MRN)
	require.NotNil(t, r.Info.BirthDate)
	assert.True(t, birth.Equal(*r.Info.BirthDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPatientNotFound(t *testing.T) {
	mock, store := setupTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(queryPatient)).WithArgs("p-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.QueryPatient(context.Background(), "p-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryPatientDBError(t *testing.T) {
	mock, store := setupTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(queryPatient)).WillReturnError(errors.New("connection reset"))

	_, err := store.QueryPatient(context.Background(), "p-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSaveIntake(t *testing.T) {
	mock, store := setupTestStore(t)
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(insertIntake)).
		WithArgs(id, nil, "Headache", []byte(`["throbbing","suddenly"]`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveIntake(context.Background(), IntakeLog{
		SessionID: id,
		Symptom:   "Headache",
		Factors:   []string{"throbbing", "suddenly"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIntakeWithPatient(t *testing.T) {
	mock, store := setupTestStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(insertIntake)).
		WithArgs(id, "p-1", "Cough", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("fk violation"))

	err := store.SaveIntake(context.Background(), IntakeLog{SessionID: id, PatientID: "p-1", Symptom: "Cough"})
	assert.Error(t, err)
}
