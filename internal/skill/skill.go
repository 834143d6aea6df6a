// Package skill holds the robot's intent handlers and the loop that runs
// them one at a time.
package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"aimar/internal/camera"
	"aimar/internal/desktop"
	"aimar/internal/host"
	"aimar/internal/metrics"
	"aimar/internal/nlu"
	"aimar/internal/patient"
	"aimar/internal/robot"
	"aimar/internal/rooms"
)

// Collaborators as the flows see them. The registry stores values
// satisfying these.
type (
	RoomDirectory interface {
		Coords(room string) (rooms.Coord, error)
	}
	Navigator interface {
		SendGoal(ctx context.Context, x, y float64) error
	}
	Mover interface {
		MoveSimple(ctx context.Context, seconds float64, dir robot.Direction) error
	}
	Arm interface {
		Test(ctx context.Context) error
	}
	Camera interface {
		Capture(ctx context.Context) (*camera.Frame, error)
	}
	Diagnoser interface {
		DiagnoseSkin(ctx context.Context, image []byte) (*desktop.Report, error)
	}
	Identity interface {
		RegisterPatient(ctx context.Context, name string, image []byte) (bool, error)
		VerifyPatient(ctx context.Context, id string, image []byte) (bool, error)
	}
)

var (
	_ RoomDirectory = (*rooms.Directory)(nil)
	_ Navigator     = (*robot.Base)(nil)
	_ Mover         = (*robot.Base)(nil)
	_ Arm           = (*robot.Arm)(nil)
	_ Camera        = (*camera.Command)(nil)
	_ Diagnoser     = (*desktop.Client)(nil)
	_ Identity      = (*desktop.Client)(nil)
	_ nlu.Extractor = (*nlu.Keyword)(nil)
	_ patient.Queue = (*patient.RedisQueue)(nil)
	_ patient.Store = (*patient.PostgresStore)(nil)
)

// Samples are the example utterances registered with the host's intent
// parser, keyed by intent name.
var Samples = map[string][]string{
	"patient.checkup":  {"check on the next patient", "who is the next patient", "go see the next patient"},
	"diagnose":         {"i don't feel well", "i want to talk about a symptom", "diagnose me"},
	"move.goal":        {"go to room {room_number}", "move to coordinates {x} {y}", "drive to room {room_number}"},
	"move.simple":      {"move {direction} for {time} seconds", "turn {direction} for {time} seconds"},
	"uarm.test":        {"test your arm", "move your arm"},
	"skin":             {"look at my skin", "check this rash", "analyze my skin"},
	"patient.register": {"register me", "i am a new patient", "sign me up"},
	"patient.verify":   {"sign me in", "verify patient {patient_id}", "check in patient {patient_id}"},
	"cancel":           {"cancel", "never mind", "clear the screen"},
}

type handler struct {
	needs []Capability
	run   func(ctx context.Context, in host.Intent) error
}

type Options struct {
	// MaxSymptomPrompts bounds how often the user is asked to name a symptom.
	MaxSymptomPrompts int
	Metrics           *metrics.Collector
	Logger            *slog.Logger
}

type Skill struct {
	surface  host.Surface
	caps     *Registry
	metrics  *metrics.Collector
	log      *slog.Logger
	prompts  int
	handlers map[string]handler
}

func New(surface host.Surface, caps *Registry, opts Options) *Skill {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxSymptomPrompts <= 0 {
		opts.MaxSymptomPrompts = 3
	}

	s := &Skill{
		surface: surface,
		caps:    caps,
		metrics: opts.Metrics,
		log:     opts.Logger.With("component", "skill"),
		prompts: opts.MaxSymptomPrompts,
	}

	s.handlers = map[string]handler{
		"patient.checkup":  {needs: []Capability{CapQueue, CapPatients, CapRooms, CapNavigation}, run: s.checkup},
		"diagnose":         {needs: []Capability{CapDialog, CapNLU}, run: s.diagnose},
		"move.goal":        {needs: []Capability{CapNavigation}, run: s.moveGoal},
		"move.simple":      {needs: []Capability{CapMotion}, run: s.moveSimple},
		"uarm.test":        {needs: []Capability{CapArm}, run: s.armTest},
		"skin":             {needs: []Capability{CapCamera, CapDiagnosis}, run: s.skin},
		"patient.register": {needs: []Capability{CapCamera, CapIdentity}, run: s.register},
		"patient.verify":   {needs: []Capability{CapCamera, CapIdentity}, run: s.verify},
		"cancel":           {run: s.cancel},
	}
	return s
}

// Intents lists the handled intent names, sorted.
func (s *Skill) Intents() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run handles intents sequentially until ctx ends or the channel closes.
func (s *Skill) Run(ctx context.Context, intents <-chan host.Intent) error {
	s.log.Info("Dispatcher started", "intents", len(s.handlers))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-intents:
			if !ok {
				s.log.Info("Intent channel closed")
				return nil
			}
			if err := s.Handle(ctx, in); err != nil && ctx.Err() == nil {
				s.log.Error("Intent failed", "intent", in.Name, "err", err)
			}
		}
	}
}

// Handle runs one intent to completion. Collaborator failures are spoken, so
// the returned error is about the surface itself or a recovered panic.
func (s *Skill) Handle(ctx context.Context, in host.Intent) (err error) {
	log := s.log.With("intent", in.Name)

	h, ok := s.handlers[in.Name]
	if !ok {
		log.Warn("Unknown intent", "data", in.Data)
		s.metrics.RecordIntent(in.Name, "unknown", 0)
		return nil
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("intent %s panicked: %v", in.Name, r)
			outcome = "panic"
		}
		s.metrics.RecordIntent(in.Name, outcome, time.Since(start))
	}()

	if c, cerr := s.caps.Require(h.needs...); cerr != nil {
		log.Warn("Capability unavailable", "capability", c, "err", cerr)
		outcome = "unavailable"
		return s.surface.Speak(ctx, unavailableText(c))
	}

	log.Info("Handling intent", "data", in.Data)
	if err = h.run(ctx, in); err != nil {
		outcome = "error"
	}
	return err
}

// optional fetches a capability a flow can do without.
func optional[T any](r *Registry, c Capability) (T, bool) {
	v, err := lookup[T](r, c)
	return v, err == nil
}

func isNoCamera(err error) bool {
	return errors.Is(err, camera.ErrNoCamera)
}
