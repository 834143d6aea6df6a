package skill

import (
	"context"
	"fmt"
	"strings"

	"aimar/internal/camera"
	"aimar/internal/host"
	"aimar/internal/metrics"
)

const imageIdle = 10

// skin photographs the patient's skin and shows the classifier's verdict.
func (s *Skill) skin(ctx context.Context, _ host.Intent) error {
	cam, _ := lookup[Camera](s.caps, CapCamera)
	diag, _ := lookup[Diagnoser](s.caps, CapDiagnosis)

	frame, err := s.capture(ctx, cam)
	if err != nil {
		if isNoCamera(err) {
			return s.surface.Speak(ctx, "Sorry, I don't detect any cameras plugged in.")
		}
		return s.surface.Speak(ctx, "Sorry, I couldn't take a picture.")
	}

	var title string
	response := "Sorry, I couldn't analyze your skin image."
	report, err := diag.DiagnoseSkin(ctx, frame.Data)
	switch {
	case err != nil:
		s.metrics.RecordDiagnosis("error")
		s.log.Error("Skin diagnosis failed", "path", frame.Path, "err", err)
	case report == nil:
		s.metrics.RecordDiagnosis("empty")
		s.log.Warn("Skin diagnosis returned nothing", "path", frame.Path)
	default:
		s.metrics.RecordDiagnosis(metrics.Status(nil))
		title = report.Text()
		response = "I've analyzed your image and displayed the results."
		s.log.Info("Skin diagnosed", "path", frame.Path, "report", title)
	}

	if err := s.surface.Speak(ctx, response); err != nil {
		return err
	}
	return s.surface.ShowImage(ctx, host.ImageView{
		Path:         frame.Path,
		Title:        title,
		Caption:      response,
		Fill:         host.FillPreserveAspectFit,
		OverrideIdle: imageIdle,
	})
}

// register asks for the patient's name and enrolls their face.
func (s *Skill) register(ctx context.Context, _ host.Intent) error {
	cam, _ := lookup[Camera](s.caps, CapCamera)
	id, _ := lookup[Identity](s.caps, CapIdentity)

	const question = "What's your name?"
	if err := s.surface.ShowText(ctx, question); err != nil {
		return err
	}
	name, err := s.surface.GetResponse(ctx, question, "")
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.surface.Speak(ctx, "Okay, we'll register you some other time.")
	}

	sorry := fmt.Sprintf("Sorry %s, I can't register you at this time.", name)

	frame, err := s.capture(ctx, cam)
	if err != nil {
		if isNoCamera(err) {
			return s.surface.Speak(ctx, "I can't register you at this time, since I don't have any cameras plugged in.")
		}
		return s.surface.Speak(ctx, sorry)
	}

	ok, err := id.RegisterPatient(ctx, name, frame.Data)
	if err != nil {
		s.log.Error("Registration failed", "name", name, "err", err)
	}
	if err != nil || !ok {
		return s.surface.Speak(ctx, sorry)
	}
	s.log.Info("Patient registered", "name", name, "path", frame.Path)
	return s.surface.Speak(ctx, fmt.Sprintf("Ok %s, you're now registered!", name))
}

// verify compares the person in front of the camera with a registered patient.
func (s *Skill) verify(ctx context.Context, in host.Intent) error {
	cam, _ := lookup[Camera](s.caps, CapCamera)
	id, _ := lookup[Identity](s.caps, CapIdentity)

	patientID := in.Get("patient_id")
	if patientID == "" {
		return s.surface.Speak(ctx, notUnderstood)
	}

	frame, err := s.capture(ctx, cam)
	if err != nil {
		if isNoCamera(err) {
			return s.surface.Speak(ctx, "I can't sign you in at this time, since I don't have any cameras plugged in.")
		}
		return s.surface.Speak(ctx, "Sorry, I can't sign you in at this time.")
	}

	match, err := id.VerifyPatient(ctx, patientID, frame.Data)
	if err != nil {
		s.log.Error("Verification failed", "patient_id", patientID, "err", err)
		return s.surface.Speak(ctx, "Sorry, I can't sign you in at this time.")
	}

	response := "Not matched"
	if match {
		response = "Matched"
	}
	s.log.Info("Patient verified", "patient_id", patientID, "match", match)

	if err := s.surface.Speak(ctx, response); err != nil {
		return err
	}
	return s.surface.ShowImage(ctx, host.ImageView{
		Path:         frame.Path,
		Fill:         host.FillPreserveAspectFit,
		OverrideIdle: imageIdle,
	})
}

func (s *Skill) cancel(ctx context.Context, _ host.Intent) error {
	return s.surface.Clear(ctx)
}

// capture treats a frame without bytes like a missing camera.
func (s *Skill) capture(ctx context.Context, cam Camera) (*camera.Frame, error) {
	frame, err := cam.Capture(ctx)
	if err != nil {
		if !isNoCamera(err) {
			s.log.Error("Capture failed", "err", err)
		}
		return nil, err
	}
	if frame == nil || len(frame.Data) == 0 {
		return nil, camera.ErrNoCamera
	}
	return frame, nil
}
