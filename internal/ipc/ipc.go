// Package ipc is the local control socket of the skill daemon.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const SocketPath = "/tmp/aimar.sock"

const (
	CmdIntent  = "intent"
	CmdEnqueue = "enqueue"
)

// ControlMessage is one JSON line sent to the socket.
type ControlMessage struct {
	Cmd       string            `json:"cmd"`
	Intent    string            `json:"intent,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	PatientID string            `json:"patient_id,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) error

// Serve accepts connections on path until ctx is done. Each connection
// carries one message and gets one Reply back.
func Serve(ctx context.Context, path string, handler Handler) error {
	os.Remove(path)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("Control socket listening", "path", path)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Warn("Accept failed", "err", err)
			continue
		}
		go handleConn(ctx, conn, handler)
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	if err := dec.Decode(&msg); err != nil {
		enc.Encode(Reply{Error: "bad message: " + err.Error()})
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.Warn("Control command failed", "cmd", msg.Cmd, "err", err)
		enc.Encode(Reply{Error: err.Error()})
		return
	}
	enc.Encode(Reply{OK: true})
}

// SendCommand delivers msg to the daemon listening on path.
func SendCommand(path string, msg ControlMessage) error {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return err
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return errors.New(reply.Error)
	}
	return nil
}
