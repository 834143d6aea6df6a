package patient

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Open connects to Postgres and applies pending migrations.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

const queryPatient = `SELECT id, mrn, full_name, room_number, birth_date, notes FROM patients WHERE id = $1`

func (s *PostgresStore) QueryPatient(ctx context.Context, id string) (*Record, error) {
	var (
		r     Record
		birth sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, queryPatient, id).Scan(
		&r.ID,
		&r.Info.MRN,
		&r.Info.Name,
		&r.RoomNumber,
		&birth,
		&r.Info.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query patient %s: %w", id, err)
	}
	if birth.Valid {
		r.Info.BirthDate = &birth.Time
	}
	return &r, nil
}

const insertIntake = `
	INSERT INTO intake_logs (session_id, patient_id, symptom, factors, created_at)
	VALUES ($1, $2, $3, $4, $5)
`

func (s *PostgresStore) SaveIntake(ctx context.Context, l IntakeLog) error {
	if l.Factors == nil {
		l.Factors = []string{}
	}
	factors, err := json.Marshal(l.Factors)
	if err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}

	var patientID sql.NullString
	if l.PatientID != "" {
		patientID = sql.NullString{String: l.PatientID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, insertIntake, l.SessionID, patientID, l.Symptom, factors, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("save intake %s: %w", l.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
