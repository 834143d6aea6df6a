package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"aimar/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  aimar-ctl [--socket path] intent <name> [key=value ...]")
	fmt.Fprintln(os.Stderr, "  aimar-ctl [--socket path] enqueue <patient-id>")
}

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	var msg ipc.ControlMessage
	switch args[0] {
	case ipc.CmdIntent:
		msg = ipc.ControlMessage{Cmd: ipc.CmdIntent, Intent: args[1], Data: map[string]string{}}
		for _, kv := range args[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "bad argument %q, want key=value\n", kv)
				os.Exit(2)
			}
			msg.Data[k] = v
		}
	case ipc.CmdEnqueue:
		msg = ipc.ControlMessage{Cmd: ipc.CmdEnqueue, PatientID: args[1]}
	default:
		usage()
		os.Exit(2)
	}

	if err := ipc.SendCommand(*socket, msg); err != nil {
		fmt.Println("aimar-skill:", err)
		os.Exit(1)
	}
}
