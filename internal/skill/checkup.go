package skill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aimar/internal/dialog"
	"aimar/internal/host"
	"aimar/internal/metrics"
	"aimar/internal/nlu"
	"aimar/internal/patient"
	"aimar/internal/robot"
)

// checkup takes the next patient off the queue and, once confirmed, drives
// to their room. A patient the robot does not reach goes back to the head of
// the queue.
func (s *Skill) checkup(ctx context.Context, _ host.Intent) error {
	queue, _ := lookup[patient.Queue](s.caps, CapQueue)
	store, _ := lookup[patient.Store](s.caps, CapPatients)
	dir, _ := lookup[RoomDirectory](s.caps, CapRooms)
	nav, _ := lookup[Navigator](s.caps, CapNavigation)

	id, err := queue.Dequeue(ctx)
	switch {
	case errors.Is(err, patient.ErrQueueEmpty):
		s.metrics.RecordQueue("dequeue", "empty")
		return s.surface.Speak(ctx, "There are no patients waiting right now.")
	case err != nil:
		s.metrics.RecordQueue("dequeue", "error")
		s.log.Error("Failed to dequeue patient", "err", err)
		return s.surface.Speak(ctx, unavailableText(CapQueue))
	}
	s.metrics.RecordQueue("dequeue", "ok")

	rec, err := store.QueryPatient(ctx, id)
	if err != nil {
		s.log.Error("Failed to query patient, dropped from queue", "patient_id", id, "err", err)
		return s.surface.Speak(ctx, fmt.Sprintf("I couldn't find the records for patient %s.", id))
	}

	room := rec.RoomNumber
	answer, err := s.surface.AskYesNo(ctx, fmt.Sprintf("The next patient is %s, in room %s. Should I check on them?", rec.Info.Name, room))
	if err != nil {
		s.requeue(ctx, queue, id)
		return err
	}
	if answer != "yes" {
		s.log.Info("Checkup declined", "patient_id", id, "answer", answer)
		s.requeue(ctx, queue, id)
		return s.surface.Speak(ctx, "Okay, I'll keep waiting.")
	}

	coord, err := dir.Coords(room)
	if err != nil {
		s.log.Warn("No coordinates for room", "room", room, "err", err)
		s.requeue(ctx, queue, id)
		return s.surface.Speak(ctx, fmt.Sprintf("I don't know where room %s is.", room))
	}

	msg := fmt.Sprintf("Okay, I'm going to %s, which is at coordinates %s, %s", room, robot.FormatFloat(coord.X), robot.FormatFloat(coord.Y))
	if err := s.surface.Speak(ctx, msg); err != nil {
		s.requeue(ctx, queue, id)
		return err
	}

	err = nav.SendGoal(ctx, coord.X, coord.Y)
	s.metrics.RecordNavigation(metrics.Status(err))
	if err != nil {
		s.log.Error("Navigation failed", "room", room, "x", coord.X, "y", coord.Y, "err", err)
		s.requeue(ctx, queue, id)
		return s.surface.Speak(ctx, fmt.Sprintf("I couldn't reach room %s.", room))
	}
	return nil
}

func (s *Skill) requeue(ctx context.Context, queue patient.Queue, id string) {
	// the intent may have been cancelled; the patient still has to go back
	err := queue.Requeue(context.WithoutCancel(ctx), id)
	s.metrics.RecordQueue("requeue", metrics.Status(err))
	if err != nil {
		s.log.Warn("Patient dropped from queue", "patient_id", id, "err", err)
		return
	}
	s.log.Info("Patient requeued", "patient_id", id)
}

// diagnose asks for a symptom and then walks its follow-up questions.
func (s *Skill) diagnose(ctx context.Context, in host.Intent) error {
	tree, _ := lookup[*dialog.Tree](s.caps, CapDialog)
	extractor, _ := lookup[nlu.Extractor](s.caps, CapNLU)

	symptom, err := s.askSymptom(ctx, tree, extractor)
	if err != nil || symptom == nil {
		return err
	}

	sess, err := dialog.NewWalker(s.surface, extractor, s.log).Walk(ctx, symptom)
	if err != nil {
		return err
	}
	s.metrics.RecordIntake(sess.Turns())

	store, ok := optional[patient.Store](s.caps, CapPatients)
	if !ok {
		s.log.Info("Intake not persisted", "session_id", sess.ID, "symptom", symptom.Name, "factors", sess.Factors)
		return nil
	}
	entry := patient.IntakeLog{
		SessionID: sess.ID,
		PatientID: in.Get("patient_id"),
		Symptom:   symptom.Name,
		Factors:   sess.Factors,
		CreatedAt: time.Now(),
	}
	if err := store.SaveIntake(ctx, entry); err != nil {
		s.log.Error("Failed to save intake", "session_id", sess.ID, "err", err)
	}
	return nil
}

// askSymptom prompts until a symptom is recognised or the prompt budget is
// spent, in which case it returns nil without error.
func (s *Skill) askSymptom(ctx context.Context, tree *dialog.Tree, extractor nlu.Extractor) (*dialog.Symptom, error) {
	prompt := "Tell me about your problem."
	for i := 0; i < s.prompts; i++ {
		answer, err := s.surface.GetResponse(ctx, prompt, " ")
		if err != nil {
			return nil, err
		}

		symptom, err := extractor.ExtractSymptom(ctx, answer, tree)
		if err != nil {
			s.log.Warn("Symptom extraction failed", "answer", answer, "err", err)
		}
		if symptom != nil {
			s.log.Info("Recognised symptom", "symptom", symptom.Name, "attempt", i+1)
			return symptom, nil
		}
		prompt = "I don't know that symptom."
	}

	s.log.Info("No symptom recognised", "attempts", s.prompts)
	return nil, s.surface.Speak(ctx, "Let's talk about it another time.")
}
