package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const CompletionMessage = "Thank you. I am now logging our conversation."

// Conversation is the part of the voice surface the intake walk talks through.
type Conversation interface {
	Speak(ctx context.Context, text string) error
	GetResponse(ctx context.Context, prompt, onFail string) (string, error)
}

type FactorExtractor interface {
	ExtractFactor(ctx context.Context, answer string, candidates []string) (string, error)
}

// Session is the state of one intake conversation. Candidates holds the
// options offered on the current turn; Factors accumulates one extracted
// factor per completed turn and only grows.
type Session struct {
	ID         uuid.UUID
	Symptom    *Symptom
	Candidates []string
	Factors    []string
}

func NewSession(s *Symptom) *Session {
	return &Session{
		ID:      uuid.New(),
		Symptom: s,
		Factors: make([]string, 0, len(s.Dialogs)),
	}
}

// Turns is the number of answered questions so far.
func (s *Session) Turns() int {
	return len(s.Factors)
}

type Walker struct {
	conv      Conversation
	extractor FactorExtractor
	log       *slog.Logger
}

func NewWalker(conv Conversation, extractor FactorExtractor, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{conv: conv, extractor: extractor, log: log}
}

// Walk asks every follow-up question of symptom in order, one answer per
// question, and announces completion. It runs exactly len(symptom.Dialogs)
// turns unless ctx is cancelled or the surface fails.
func (w *Walker) Walk(ctx context.Context, symptom *Symptom) (*Session, error) {
	sess := NewSession(symptom)
	log := w.log.With("session_id", sess.ID, "symptom", symptom.Name)
	log.Info("Starting intake", "questions", len(symptom.Dialogs))

	for i, entry := range symptom.Dialogs {
		sess.Candidates = Lower(entry.Factors)

		question := Question(entry.Prefix, entry.Factors, i == 0)
		answer, err := w.conv.GetResponse(ctx, question, " ")
		if err != nil {
			return sess, fmt.Errorf("intake turn %d: %w", i+1, err)
		}

		factor, err := w.extractor.ExtractFactor(ctx, answer, sess.Candidates)
		if err != nil {
			log.Warn("Factor extraction failed, keeping raw answer", "turn", i+1, "err", err)
			factor = strings.ToLower(strings.TrimSpace(answer))
		}

		sess.Factors = append(sess.Factors, factor)
		log.Debug("Collected factor", "turn", i+1, "factor", factor)
	}

	sess.Candidates = nil
	if err := w.conv.Speak(ctx, CompletionMessage); err != nil {
		return sess, err
	}

	log.Info("Intake finished", "factors", sess.Factors)
	return sess, nil
}
