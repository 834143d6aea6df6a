// Package patient holds the ward's waiting queue and patient records.
package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueEmpty = errors.New("patient queue is empty")
	ErrNotFound   = errors.New("patient not found")
)

type Info struct {
	MRN       string
	Name      string
	BirthDate *time.Time
	Notes     string
}

type Record struct {
	ID         string
	RoomNumber string
	Info       Info
}

// IntakeLog is what the robot keeps of a symptom conversation.
type IntakeLog struct {
	SessionID uuid.UUID
	PatientID string
	Symptom   string
	Factors   []string
	CreatedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, id string) error
	// Dequeue pops the oldest waiting patient, or returns ErrQueueEmpty.
	Dequeue(ctx context.Context) (string, error)
	// Requeue puts a dequeued patient back at the head of the queue.
	Requeue(ctx context.Context, id string) error
	Len(ctx context.Context) (int64, error)
}

type Store interface {
	QueryPatient(ctx context.Context, id string) (*Record, error)
	SaveIntake(ctx context.Context, log IntakeLog) error
}
