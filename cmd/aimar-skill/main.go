package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"aimar/internal/config"
	"aimar/internal/host"
	"aimar/internal/ipc"
	"aimar/internal/metrics"
	"aimar/internal/ops"
	"aimar/internal/skill"
)

const skillID = "aimar-skill"

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// surface is a host connection that also produces intents.
type surface interface {
	host.Surface
	Intents() <-chan host.Intent
	Run(ctx context.Context) error
}

func main() {
	cfgPath := cli.StringP("config", "c", "config.yml", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	console := cli.Bool("console", false, "Talk on stdin/stdout instead of the messagebus")
	socket := cli.String("socket", ipc.SocketPath, "Control socket path")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := config.Load(*cfgPath)
	if errors.Is(err, config.ErrBootstrapped) {
		log.Error("No config found, wrote a default one. Check it and start again", "path", *cfgPath)
		os.Exit(1)
	}
	if err != nil {
		log.Error("Failed to load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded config", "desktop", cfg.DesktopURL(), "bus", cfg.BusURL, "robot", cfg.RobotURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("aimar", reg)

	caps := skill.NewRegistry()
	collab := setupCapabilities(ctx, cfg, caps, collector)
	defer collab.Close()

	if missing := caps.Missing(); len(missing) > 0 {
		log.Warn("Booting with missing capabilities", "missing", missing)
	}

	var sfc surface
	if *console {
		sfc = host.NewConsole(os.Stdin, os.Stdout, cfg.ResponseTimeout)
	} else {
		bus, err := host.NewBus(ctx, cfg.BusURL, skillID, cfg.ResponseTimeout)
		if err != nil {
			log.Error("Failed to connect to messagebus", "url", cfg.BusURL, "err", err)
			os.Exit(1)
		}
		defer bus.Close()
		sfc = bus
	}

	sk := skill.New(sfc, caps, skill.Options{
		MaxSymptomPrompts: cfg.Intake.MaxSymptomPrompts,
		Metrics:           collector,
		Logger:            log.Default(),
	})

	if bus, ok := sfc.(*host.Bus); ok {
		for _, name := range sk.Intents() {
			if err := bus.RegisterIntent(name, skill.Samples[name]); err != nil {
				log.Error("Failed to register intent", "intent", name, "err", err)
				os.Exit(1)
			}
		}
		log.Debug("Registered intents", "count", len(sk.Intents()))
	}

	// intents from the control socket join the host's queue through this channel
	local := make(chan host.Intent, 16)

	log.Info("Boot up - successful")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the host going away ends the daemon
		defer stop()
		return sfc.Run(gctx)
	})
	g.Go(func() error {
		return sk.Run(gctx, merge(gctx, sfc.Intents(), local))
	})
	if collab.robot != nil {
		g.Go(func() error {
			collab.robot.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return ipc.Serve(gctx, *socket, controlHandler(collab, local, collector))
	})
	if cfg.OpsAddr != "" {
		g.Go(func() error {
			return ops.Serve(gctx, cfg.OpsAddr, ops.NewRouter(ops.Deps{
				Queue:        collab.queue,
				Capabilities: caps.Status,
				Gatherer:     reg,
				Metrics:      collector,
				Logger:       log.Default(),
			}))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func controlHandler(collab *collaborators, local chan<- host.Intent, m *metrics.Collector) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) error {
		switch msg.Cmd {
		case ipc.CmdIntent:
			if msg.Intent == "" {
				return errors.New("intent name required")
			}
			select {
			case local <- host.Intent{Name: msg.Intent, Data: msg.Data}:
				return nil
			default:
				return errors.New("intent queue full")
			}
		case ipc.CmdEnqueue:
			if collab.queue == nil {
				return errors.New("patient queue not configured")
			}
			err := collab.queue.Enqueue(ctx, msg.PatientID)
			m.RecordQueue("enqueue", metrics.Status(err))
			if err == nil {
				log.Info("Patient enqueued", "patient_id", msg.PatientID, "via", "socket")
			}
			return err
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return fmt.Errorf("unknown command %q", msg.Cmd)
		}
	}
}

// merge forwards both intent sources into one channel, closed once the host
// channel closes.
func merge(ctx context.Context, fromHost <-chan host.Intent, local <-chan host.Intent) <-chan host.Intent {
	out := make(chan host.Intent)
	go func() {
		defer close(out)
		for {
			var (
				in host.Intent
				ok bool
			)
			select {
			case <-ctx.Done():
				return
			case in, ok = <-fromHost:
				if !ok {
					return
				}
			case in = <-local:
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
