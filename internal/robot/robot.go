package robot

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"

	"aimar/pkg/protocol"
)

var ErrUnknownDirection = errors.New("unknown direction")

// Transceiver is the part of protocol.Protocol the robot adapters need.
type Transceiver interface {
	TransmitReceive(ctx context.Context, v any) (*protocol.Message, error)
}

type observed struct {
	next    Transceiver
	observe func(to string, err error)
}

// Observed reports the recipient and result of every exchange over t.
func Observed(t Transceiver, observe func(to string, err error)) Transceiver {
	return &observed{next: t, observe: observe}
}

func (o *observed) TransmitReceive(ctx context.Context, v any) (*protocol.Message, error) {
	to := "?"
	if frame, ok := v.([]string); ok && len(frame) > 0 {
		to = frame[0]
	}
	reply, err := o.next.TransmitReceive(ctx, v)
	status := err
	if status == nil && reply != nil {
		status = reply.Err()
	}
	o.observe(to, status)
	return reply, err
}

type Direction string

const (
	Left     Direction = "left"
	Right    Direction = "right"
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection accepts the spoken direction words the host extracts.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "forward", "forwards", "ahead", "straight":
		return Forward, nil
	case "backward", "backwards", "back", "reverse":
		return Backward, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// Turning reports whether moving in d rotates the base in place.
func (d Direction) Turning() bool {
	return d == Left || d == Right
}

// Base drives the mobile base through the BASE shard of the robot hub.
type Base struct {
	ptcl Transceiver
}

func NewBase(ptcl Transceiver) *Base {
	return &Base{ptcl: ptcl}
}

// SendGoal asks the navigation stack to drive to (x, y) on the map and waits
// for it to accept the goal.
func (b *Base) SendGoal(ctx context.Context, x, y float64) error {
	log.Info("Sending navigation goal", "x", x, "y", y)
	return send(ctx, b.ptcl, []string{"BASE", "GOTO", "POSE", FormatFloat(x), FormatFloat(y)})
}

// MoveSimple drives the base in a direction for a number of seconds.
func (b *Base) MoveSimple(ctx context.Context, seconds float64, dir Direction) error {
	if dir == "" {
		return ErrUnknownDirection
	}
	log.Info("Moving base", "direction", dir, "seconds", seconds)
	return send(ctx, b.ptcl, []string{"BASE", "MOVE", strings.ToUpper(string(dir)), FormatFloat(seconds)})
}

// Arm operates the uArm through the ARM shard.
type Arm struct {
	ptcl Transceiver
}

func NewArm(ptcl Transceiver) *Arm {
	return &Arm{ptcl: ptcl}
}

// Test runs the arm's built-in demonstration sequence.
func (a *Arm) Test(ctx context.Context) error {
	log.Info("Running arm test sequence")
	return send(ctx, a.ptcl, []string{"ARM", "RUN", "TEST"})
}

func send(ctx context.Context, ptcl Transceiver, frame []string) error {
	reply, err := ptcl.TransmitReceive(ctx, frame)
	if err != nil {
		return fmt.Errorf("%s %s: %w", frame[0], frame[1], err)
	}
	if err := reply.Err(); err != nil {
		return fmt.Errorf("%s %s rejected: %w", frame[0], frame[1], err)
	}
	return nil
}

// FormatFloat renders v with at least one decimal place, as spoken and as
// sent on the wire: 1 -> "1.0", 2.25 -> "2.25".
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
