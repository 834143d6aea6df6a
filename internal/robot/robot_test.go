package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aimar/pkg/protocol"
)

type fakeHub struct {
	frames []string
	reply  string
	err    error
}

func (f *fakeHub) TransmitReceive(_ context.Context, v any) (*protocol.Message, error) {
	frame := v.([]string)
	msg := &protocol.Message{To: frame[0], Verb: frame[1], Noun: frame[2], Args: frame[3:], From: "AIMAR"}
	f.frames = append(f.frames, msg.String())
	if f.err != nil {
		return nil, f.err
	}
	return protocol.Parse(f.reply)
}

func TestSendGoal(t *testing.T) {
	hub := &fakeHub{reply: "AIMAR:OK:POSE:BASE"}
	base := NewBase(hub)

	require.NoError(t, base.SendGoal(context.Background(), 1, 2.5))
	assert.Equal(t, []string{"BASE:GOTO:POSE:1.0:2.5:AIMAR"}, hub.frames)
}

func TestSendGoalRejected(t *testing.T) {
	hub := &fakeHub{reply: "AIMAR:ERR:UNREACHABLE:BASE"}
	err := NewBase(hub).SendGoal(context.Background(), 3, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNREACHABLE")
}

func TestSendGoalTimeout(t *testing.T) {
	hub := &fakeHub{err: protocol.ErrTimeout}
	err := NewBase(hub).SendGoal(context.Background(), 3, 4)
	assert.ErrorIs(t, err, protocol.ErrTimeout)
}

func TestMoveSimple(t *testing.T) {
	hub := &fakeHub{reply: "AIMAR:OK:MOVE:BASE"}
	base := NewBase(hub)

	require.NoError(t, base.MoveSimple(context.Background(), 3, Left))
	assert.Equal(t, []string{"BASE:MOVE:LEFT:3.0:AIMAR"}, hub.frames)

	assert.ErrorIs(t, base.MoveSimple(context.Background(), 3, ""), ErrUnknownDirection)
}

func TestArmTest(t *testing.T) {
	hub := &fakeHub{reply: "AIMAR:OK:TEST:ARM"}
	require.NoError(t, NewArm(hub).Test(context.Background()))
	assert.Equal(t, []string{"ARM:RUN:TEST:AIMAR"}, hub.frames)

	hub.err = errors.New("hub gone")
	assert.Error(t, NewArm(hub).Test(context.Background()))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" Backwards ")
	require.NoError(t, err)
	assert.Equal(t, Backward, d)
	assert.False(t, d.Turning())

	d, err = ParseDirection("right")
	require.NoError(t, err)
	assert.True(t, d.Turning())

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrUnknownDirection)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "1.0", FormatFloat(1))
	assert.Equal(t, "-2.0", FormatFloat(-2))
	assert.Equal(t, "2.25", FormatFloat(2.25))
	assert.Equal(t, "0.0", FormatFloat(0))
}

func TestObserved(t *testing.T) {
	hub := &fakeHub{reply: "AIMAR:ERR:JAMMED:ARM"}
	var seen []string
	ptcl := Observed(hub, func(to string, err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		seen = append(seen, to+"="+status)
	})

	err := NewArm(ptcl).Test(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	hub.reply = "AIMAR:OK:POSE:BASE"
	require.NoError(t, NewBase(ptcl).SendGoal(context.Background(), 0, 0))

	hub.err = errors.New("hub gone")
	require.Error(t, NewBase(ptcl).SendGoal(context.Background(), 0, 0))

	assert.Equal(t, []string{"ARM=error", "BASE=ok", "BASE=error"}, seen)
}
