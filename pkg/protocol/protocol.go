package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	ErrTimeout     = errors.New("protocol: reply timeout")
	ErrUnsupported = errors.New("protocol: unsupported payload type")
)

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  uint
	Timeout time.Duration
	EmitOut func(*Message)
}

// Protocol speaks the colon-framed TO:VERB:NOUN:ARGS:FROM protocol of the
// robot hub. Only one request may wait for a reply at a time.
type Protocol struct {
	ws *WebSocket

	shard   string
	timeout time.Duration

	txMu sync.Mutex

	waiterMu sync.Mutex
	waiter   *waiter

	emitOut func(*Message)
}

// waiter takes the OK or ERR reply of the shard a request was sent to.
type waiter struct {
	from string
	ch   chan *Message
}

func (w *waiter) accepts(msg *Message) bool {
	return msg.From == w.from && (msg.IsOk() || msg.IsErr())
}

func NewProtocol(cfg PtclConfig) (*Protocol, error) {
	ws, err := NewWebSocket(cfg.Url, cfg.Reconn, cfg.Timeout)
	if err != nil {
		log.Error("Failed to init ws connection", "url", cfg.Url)
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ptcl := &Protocol{
		shard:   cfg.Shard,
		timeout: timeout,
		ws:      ws,
		emitOut: cfg.EmitOut,
	}

	return ptcl, nil
}

func (ptcl *Protocol) Shard() string {
	return ptcl.shard
}

// TransmitReceive sends v and blocks until the addressed shard answers with
// OK or ERR, the configured timeout elapses or ctx is cancelled. Requests are
// serialised. Frames from other senders meanwhile go to EmitOut.
func (ptcl *Protocol) TransmitReceive(ctx context.Context, v any) (*Message, error) {
	to, err := recipient(v)
	if err != nil {
		return nil, err
	}

	ptcl.txMu.Lock()
	defer ptcl.txMu.Unlock()

	w := ptcl.installWaiter(to)
	defer ptcl.clearWaiter()

	if err := ptcl.Transmit(v); err != nil {
		return nil, err
	}

	timer := time.NewTimer(ptcl.timeout)
	defer timer.Stop()

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ptcl *Protocol) Transmit(v any) error {
	var msg string

	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		msg = m.String()
	case *Message:
		m.From = ptcl.shard
		msg = m.String()
	case string:
		msg = fmt.Sprintf("%s:%s", m, ptcl.shard)
	case []string:
		pay := strings.Join(m, ":")
		msg = fmt.Sprintf("%s:%s", pay, ptcl.shard)
	default:
		log.Error("Provided unsupported type", "type", fmt.Sprintf("%T", v))
		return ErrUnsupported
	}

	err := ptcl.ws.Write([]byte(msg))
	if err != nil {
		log.Error("Failed to transmit", "msg", msg, "err", err)
	}
	return err
}

// Run reads frames until ctx is cancelled. A reply addressed to this shard by
// the shard the pending request went to is handed to that request; anything
// else, broadcasts and late replies included, goes to EmitOut.
func (ptcl *Protocol) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ptcl.ws.Close()
	}()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return
		}
		switch in.kind {
		case CONN_CLOSE:
			log.Warn("Trying to reconnect on", "url", ptcl.ws.url)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Succefully reconnected")

		case READ_FAILURE:
			// gorilla connections are unusable after a read error
			log.Error("Failed to read", "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := ptcl.Parse(string(in.msg))
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}

			if w := ptcl.currentWaiter(); w != nil && msg.To == ptcl.Shard() && w.accepts(msg) {
				select {
				case w.ch <- msg:
				default:
					log.Warn("Dropped duplicate reply", "msg", msg.String())
				}
			} else if ptcl.emitOut != nil {
				ptcl.emitOut(msg)
			}
		}
	}
}

func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}

func (ptcl *Protocol) installWaiter(from string) *waiter {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = &waiter{from: from, ch: make(chan *Message, 1)}
	return ptcl.waiter
}

func (ptcl *Protocol) clearWaiter() {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = nil
}

func (ptcl *Protocol) currentWaiter() *waiter {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	return ptcl.waiter
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to := strings.Split(string(msg), ":")[0]
	return to == ptcl.Shard() || to == "ALL"
}

// recipient is the TO field of an outgoing frame.
func recipient(v any) (string, error) {
	var to string
	switch m := v.(type) {
	case Message:
		to = m.To
	case *Message:
		to = m.To
	case string:
		to = strings.Split(m, ":")[0]
	case []string:
		if len(m) > 0 {
			to = m[0]
		}
	default:
		return "", ErrUnsupported
	}
	if to == "" {
		return "", errors.New("protocol: frame has no recipient")
	}
	return to, nil
}

func (ptcl *Protocol) Parse(line string) (*Message, error) {
	return Parse(line)
}

// Parse decodes a single frame.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}

	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	msg := &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}
	return msg, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To)
	parts = append(parts, m.Verb)
	parts = append(parts, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

func (m *Message) IsOk() bool {
	return m.Verb == "OK"
}

func (m *Message) IsErr() bool {
	return m.Verb == "ERR"
}

// Err converts an ERR reply into an error; other replies yield nil.
func (m *Message) Err() error {
	if !m.IsErr() {
		return nil
	}
	if len(m.Args) > 0 {
		return fmt.Errorf("%s: %s (%s)", m.From, m.Noun, strings.Join(m.Args, ","))
	}
	return fmt.Errorf("%s: %s", m.From, m.Noun)
}

func (m *Message) Error(reason string, args ...string) {
	m.Verb = "ERR"
	m.Noun = reason
	m.Args = args
}

func (m *Message) Ok(reason string, args ...string) {
	m.Verb = "OK"
	m.Noun = reason
	m.Args = args
}
