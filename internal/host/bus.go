package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	typeSpeak          = "speak"
	typeUtterance      = "recognizer_loop:utterance"
	typeStop           = "mycroft.stop"
	typeRegisterIntent = "padatious:register_intent"
	typeGUIValueSet    = "gui.value.set"
	typeGUIPageShow    = "gui.page.show"
	typeGUIClear       = "gui.clear.namespace"

	imagePage = "SYSTEM_ImageFrame.qml"
	textPage  = "SYSTEM_TextFrame.qml"
)

var errBadEnvelope = errors.New("bad bus envelope")

// BusMessage is the messagebus envelope.
type BusMessage struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Context map[string]any `json:"context,omitempty"`
}

// Bus is a Surface over the voice host's websocket messagebus. Run must be
// going for answers and intents to arrive.
type Bus struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	skillID string
	timeout time.Duration

	answers waiter
	intents chan Intent
}

func NewBus(ctx context.Context, wsURL, skillID string, timeout time.Duration) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to bus", "url", wsURL)
	return &Bus{
		conn:    conn,
		skillID: skillID,
		timeout: timeout,
		intents: make(chan Intent, 16),
	}, nil
}

// Intents yields the intents addressed to this skill, in arrival order.
func (b *Bus) Intents() <-chan Intent {
	return b.intents
}

// Run reads the bus until ctx is cancelled or the connection fails.
func (b *Bus) Run(ctx context.Context) error {
	defer close(b.intents)

	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()

	for {
		m, err := b.Read()
		if errors.Is(err, errBadEnvelope) {
			slog.Warn("Skipping bus message", "err", err)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bus read: %w", err)
		}
		b.route(m)
	}
}

func (b *Bus) route(m *BusMessage) {
	switch {
	case m.Type == typeUtterance:
		u := firstUtterance(m.Data)
		if !b.answers.deliver(u) {
			slog.Debug("Utterance with no pending question", "utterance", u)
		}

	case m.Type == typeStop:
		b.answers.deliver("")

	case strings.HasPrefix(m.Type, b.skillID+":"):
		in := Intent{
			Name: strings.TrimSuffix(strings.TrimPrefix(m.Type, b.skillID+":"), ".intent"),
			Data: stringify(m.Data),
		}
		select {
		case b.intents <- in:
		default:
			slog.Warn("Intent queue full, dropping", "intent", in.Name)
		}
	}
}

func (b *Bus) Read() (*BusMessage, error) {
	_, msg, err := b.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var m BusMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadEnvelope, err)
	}

	return &m, nil
}

func (b *Bus) Write(m *BusMessage) error {
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	m.Context["skill_id"] = b.skillID
	m.Context["ident"] = uuid.NewString()

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bus) Close() error {
	return b.conn.Close()
}

// RegisterIntent tells the host's intent parser which samples map to name.
func (b *Bus) RegisterIntent(name string, samples []string) error {
	return b.Write(&BusMessage{
		Type: typeRegisterIntent,
		Data: map[string]any{
			"name":    b.skillID + ":" + name + ".intent",
			"samples": samples,
		},
	})
}

func (b *Bus) Speak(_ context.Context, text string) error {
	return b.speak(text, false)
}

func (b *Bus) speak(text string, expectResponse bool) error {
	return b.Write(&BusMessage{
		Type: typeSpeak,
		Data: map[string]any{"utterance": text, "expect_response": expectResponse},
	})
}

func (b *Bus) GetResponse(ctx context.Context, prompt, onFail string) (string, error) {
	ch := b.answers.install()
	defer b.answers.clear()

	if err := b.speak(prompt, true); err != nil {
		return "", err
	}

	answer, err := await(ctx, ch, b.timeout)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		if strings.TrimSpace(onFail) != "" {
			if err := b.speak(onFail, false); err != nil {
				return "", err
			}
		}
		return "", nil
	}
	return answer, nil
}

func (b *Bus) AskYesNo(ctx context.Context, prompt string) (string, error) {
	answer, err := b.GetResponse(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return NormalizeYesNo(answer), nil
}

func (b *Bus) ShowImage(_ context.Context, view ImageView) error {
	fill := view.Fill
	if fill == "" {
		fill = FillPreserveAspectFit
	}
	err := b.Write(&BusMessage{
		Type: typeGUIValueSet,
		Data: map[string]any{
			"__from":  b.skillID,
			"image":   view.Path,
			"title":   view.Title,
			"caption": view.Caption,
			"fill":    string(fill),
		},
	})
	if err != nil {
		return err
	}
	return b.showPage(imagePage, view.OverrideIdle)
}

func (b *Bus) ShowText(_ context.Context, text string) error {
	err := b.Write(&BusMessage{
		Type: typeGUIValueSet,
		Data: map[string]any{"__from": b.skillID, "text": text},
	})
	if err != nil {
		return err
	}
	return b.showPage(textPage, 0)
}

func (b *Bus) Clear(_ context.Context) error {
	return b.Write(&BusMessage{
		Type: typeGUIClear,
		Data: map[string]any{"__from": b.skillID},
	})
}

func (b *Bus) showPage(page string, idle int) error {
	data := map[string]any{
		"__from": b.skillID,
		"page":   []string{page},
	}
	if idle > 0 {
		data["__idle"] = idle
	}
	return b.Write(&BusMessage{Type: typeGUIPageShow, Data: data})
}

func firstUtterance(data map[string]any) string {
	list, _ := data["utterances"].([]any)
	for _, u := range list {
		if s, ok := u.(string); ok {
			return s
		}
	}
	return ""
}

func stringify(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
