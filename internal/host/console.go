package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Console is a terminal Surface for bench testing without a voice host.
// Lines starting with "/" are intents ("/move.goal room_number=5"); any other
// line answers the pending question.
type Console struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex

	timeout time.Duration
	answers waiter
	intents chan Intent
}

func NewConsole(in io.Reader, out io.Writer, timeout time.Duration) *Console {
	return &Console{
		in:      in,
		out:     out,
		timeout: timeout,
		intents: make(chan Intent, 16),
	}
}

func (c *Console) Intents() <-chan Intent {
	return c.intents
}

// Run consumes input lines until EOF or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	defer close(c.intents)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			c.route(line)
		}
	}
}

func (c *Console) route(line string) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") {
		in, ok := ParseIntentLine(line)
		if !ok {
			c.printf("?? could not parse %q\n", line)
			return
		}
		select {
		case c.intents <- in:
		default:
			c.printf("?? busy, dropped %s\n", in.Name)
		}
		return
	}
	if !c.answers.deliver(line) {
		c.printf("?? nobody asked\n")
	}
}

// ParseIntentLine parses "/name key=value key=value".
func ParseIntentLine(line string) (Intent, bool) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return Intent{}, false
	}
	in := Intent{Name: strings.TrimSuffix(fields[0], ".intent"), Data: map[string]string{}}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return Intent{}, false
		}
		in.Data[k] = v
	}
	return in, true
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Speak(_ context.Context, text string) error {
	c.printf(">> %s\n", text)
	return nil
}

func (c *Console) GetResponse(ctx context.Context, prompt, onFail string) (string, error) {
	ch := c.answers.install()
	defer c.answers.clear()

	c.printf(">> %s\n", prompt)
	answer, err := await(ctx, ch, c.timeout)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		if strings.TrimSpace(onFail) != "" {
			c.printf(">> %s\n", onFail)
		}
		return "", nil
	}
	return answer, nil
}

func (c *Console) AskYesNo(ctx context.Context, prompt string) (string, error) {
	answer, err := c.GetResponse(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return NormalizeYesNo(answer), nil
}

func (c *Console) ShowImage(_ context.Context, view ImageView) error {
	c.printf("[image %s | %s | %s | idle %ds]\n", view.Path, view.Title, view.Caption, view.OverrideIdle)
	return nil
}

func (c *Console) ShowText(_ context.Context, text string) error {
	c.printf("[text %s]\n", text)
	return nil
}

func (c *Console) Clear(_ context.Context) error {
	c.printf("[clear]\n")
	return nil
}
