package main

import (
	"context"
	"time"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"

	"aimar/internal/camera"
	"aimar/internal/config"
	"aimar/internal/desktop"
	"aimar/internal/dialog"
	"aimar/internal/metrics"
	"aimar/internal/nlu"
	"aimar/internal/patient"
	"aimar/internal/proxy"
	"aimar/internal/robot"
	"aimar/internal/rooms"
	"aimar/internal/skill"
	"aimar/pkg/protocol"
)

// collaborators keeps what the daemon must run or close besides the registry.
type collaborators struct {
	queue  patient.Queue
	robot  *protocol.Protocol
	closer []func() error
}

func (c *collaborators) Close() {
	for i := len(c.closer) - 1; i >= 0; i-- {
		if err := c.closer[i](); err != nil {
			log.Warn("Close failed", "err", err)
		}
	}
}

// setupCapabilities builds every collaborator it can. Failures are logged
// and leave the capability absent; the daemon keeps booting.
func setupCapabilities(ctx context.Context, cfg *config.Config, caps *skill.Registry, m *metrics.Collector) *collaborators {
	c := &collaborators{}

	absent := func(name skill.Capability, err error) {
		log.Warn("Capability unavailable", "capability", name, "err", err)
		caps.Absent(name, err.Error())
	}

	// patient queue
	if cfg.Redis.Addr == "" {
		caps.Absent(skill.CapQueue, "redis.addr not set")
	} else {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		q := patient.NewRedisQueue(client, cfg.Redis.QueueKey)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := q.Ping(pingCtx)
		cancel()
		if err != nil {
			client.Close()
			absent(skill.CapQueue, err)
		} else {
			c.queue = q
			c.closer = append(c.closer, client.Close)
			caps.Provide(skill.CapQueue, patient.Queue(q))
			log.Debug("Loaded patient queue", "addr", cfg.Redis.Addr, "key", cfg.Redis.QueueKey)
		}
	}

	// patient records
	if cfg.DatabaseURL == "" {
		caps.Absent(skill.CapPatients, "database_url not set")
	} else if store, err := patient.Open(ctx, cfg.DatabaseURL); err != nil {
		absent(skill.CapPatients, err)
	} else {
		c.closer = append(c.closer, store.Close)
		caps.Provide(skill.CapPatients, patient.Store(store))
		log.Debug("Loaded patient store")
	}

	if dir, err := rooms.Load(cfg.RoomsFile); err != nil {
		absent(skill.CapRooms, err)
	} else {
		caps.Provide(skill.CapRooms, skill.RoomDirectory(dir))
		log.Debug("Loaded rooms", "count", dir.Len())
	}

	if tree, err := dialog.Load(cfg.DialogFile); err != nil {
		absent(skill.CapDialog, err)
	} else {
		caps.Provide(skill.CapDialog, tree)
		log.Debug("Loaded dialog tree", "symptoms", len(tree.Symptoms))
	}

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 60*time.Second)
	if err != nil {
		log.Error("Failed to dial socks proxy, going direct", "proxy", cfg.SocksProxy, "err", err)
		httpClient, _ = proxy.NewHTTPClient("", 60*time.Second)
	}

	if cfg.OpenAI.APIKey == "" {
		log.Info("OPENAI_API_KEY not set, using keyword matching")
		caps.Provide(skill.CapNLU, nlu.Extractor(nlu.NewKeyword()))
	} else {
		client := openai.NewClient(
			option.WithAPIKey(cfg.OpenAI.APIKey),
			option.WithHTTPClient(httpClient),
		)
		caps.Provide(skill.CapNLU, nlu.Extractor(nlu.NewOpenAI(client, cfg.OpenAI.Model)))
		log.Debug("Loaded OpenAI extractor", "model", cfg.OpenAI.Model)
	}

	// robot hub
	ptcl, err := protocol.NewProtocol(protocol.PtclConfig{
		Shard:   cfg.RobotShard,
		Url:     cfg.RobotURL,
		Reconn:  5,
		Timeout: cfg.RobotTimeout,
		EmitOut: func(msg *protocol.Message) {
			log.Info("Unsolicited robot frame", "msg", msg.String())
		},
	})
	if err != nil {
		for _, name := range []skill.Capability{skill.CapNavigation, skill.CapMotion, skill.CapArm} {
			absent(name, err)
		}
	} else {
		c.robot = ptcl
		c.closer = append(c.closer, ptcl.Close)
		link := robot.Observed(ptcl, func(to string, err error) {
			m.RecordRobotFrame(to, metrics.Status(err))
		})
		base := robot.NewBase(link)
		caps.Provide(skill.CapNavigation, skill.Navigator(base))
		caps.Provide(skill.CapMotion, skill.Mover(base))
		caps.Provide(skill.CapArm, skill.Arm(robot.NewArm(link)))
		log.Debug("Connected to robot hub", "url", cfg.RobotURL, "shard", cfg.RobotShard)
	}

	// a grabber missing at capture time surfaces as camera.ErrNoCamera
	if len(cfg.Camera.Command) == 0 {
		caps.Absent(skill.CapCamera, "camera.command not set")
	} else {
		caps.Provide(skill.CapCamera, skill.Camera(camera.NewCommand(cfg.Camera.Command, cfg.Camera.DeviceGlob, cfg.Camera.Dir)))
	}

	desk := desktop.NewClient(cfg.DesktopURL(), httpClient)
	caps.Provide(skill.CapDiagnosis, skill.Diagnoser(desk))
	caps.Provide(skill.CapIdentity, skill.Identity(desk))
	log.Debug("Desktop services", "url", cfg.DesktopURL())

	return c
}
