package skill

import (
	"context"
	"fmt"
	"strconv"

	"aimar/internal/host"
	"aimar/internal/metrics"
	"aimar/internal/robot"
)

const notUnderstood = "I couldn't understand your command."

// moveGoal drives to a room by number or to raw map coordinates.
func (s *Skill) moveGoal(ctx context.Context, in host.Intent) error {
	nav, _ := lookup[Navigator](s.caps, CapNavigation)

	var x, y float64
	if room := in.Get("room_number"); room != "" {
		dir, ok := optional[RoomDirectory](s.caps, CapRooms)
		if !ok {
			return s.surface.Speak(ctx, unavailableText(CapRooms))
		}
		coord, err := dir.Coords(room)
		if err != nil {
			s.log.Warn("No coordinates for room", "room", room, "err", err)
			return s.surface.Speak(ctx, fmt.Sprintf("I don't know where room %s is.", room))
		}
		x, y = coord.X, coord.Y
	} else {
		var errX, errY error
		x, errX = strconv.ParseFloat(in.Get("x"), 64)
		y, errY = strconv.ParseFloat(in.Get("y"), 64)
		if errX != nil || errY != nil {
			s.log.Warn("Bad goal coordinates", "x", in.Get("x"), "y", in.Get("y"))
			return s.surface.Speak(ctx, notUnderstood)
		}
	}

	xs, ys := robot.FormatFloat(x), robot.FormatFloat(y)
	err := nav.SendGoal(ctx, x, y)
	s.metrics.RecordNavigation(metrics.Status(err))
	if err != nil {
		s.log.Error("Navigation failed", "x", x, "y", y, "err", err)
		return s.surface.Speak(ctx, fmt.Sprintf("I couldn't move to coordinates %s, %s.", xs, ys))
	}
	return s.surface.Speak(ctx, fmt.Sprintf("Moving to coordinates %s, %s", xs, ys))
}

// moveSimple drives or turns for a number of seconds.
func (s *Skill) moveSimple(ctx context.Context, in host.Intent) error {
	mover, _ := lookup[Mover](s.caps, CapMotion)

	raw := in.Get("time")
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		s.log.Warn("Bad move duration", "time", raw)
		return s.surface.Speak(ctx, notUnderstood)
	}
	dir, err := robot.ParseDirection(in.Get("direction"))
	if err != nil {
		s.log.Warn("Bad move direction", "err", err)
		return s.surface.Speak(ctx, notUnderstood)
	}

	if err := mover.MoveSimple(ctx, seconds, dir); err != nil {
		s.log.Error("Move failed", "direction", dir, "seconds", seconds, "err", err)
		return s.surface.Speak(ctx, fmt.Sprintf("I couldn't move %s.", dir))
	}

	action := "moving"
	if dir.Turning() {
		action = "turning"
	}
	return s.surface.Speak(ctx, fmt.Sprintf("%s %s for %s seconds", action, dir, raw))
}

func (s *Skill) armTest(ctx context.Context, _ host.Intent) error {
	arm, _ := lookup[Arm](s.caps, CapArm)

	if err := s.surface.Speak(ctx, "I'm moving my arm."); err != nil {
		return err
	}
	if err := arm.Test(ctx); err != nil {
		s.log.Error("Arm test failed", "err", err)
		return s.surface.Speak(ctx, "I couldn't move my arm.")
	}
	return nil
}
