package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrBootstrapped is returned by Load when no config document existed and a
// default one was written. The operator is expected to edit it and re-run.
var ErrBootstrapped = errors.New("config: default config written")

const DefaultDesktopIP = "127.0.0.1"

// MinTimeout is the smallest accepted timeout.
const MinTimeout = time.Second

type CameraConfig struct {
	// Command is run with the output path appended as last argument.
	Command    []string `yaml:"command"`
	DeviceGlob string   `yaml:"device_glob"`
	Dir        string   `yaml:"dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

type OpenAIConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"-"`
}

type IntakeConfig struct {
	MaxSymptomPrompts int `yaml:"max_symptom_prompts"`
}

type Config struct {
	DesktopIP     string `yaml:"desktop_ip"`
	DiagnosisPort int    `yaml:"diagnosis_port"`
	SocksProxy    string `yaml:"socks_proxy"`

	BusURL          string        `yaml:"bus_url"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	RobotURL     string        `yaml:"robot_url"`
	RobotShard   string        `yaml:"robot_shard"`
	RobotTimeout time.Duration `yaml:"robot_timeout"`

	RoomsFile  string `yaml:"rooms_file"`
	DialogFile string `yaml:"dialog_file"`

	Camera CameraConfig `yaml:"camera"`
	Redis  RedisConfig  `yaml:"redis"`

	DatabaseURL string `yaml:"database_url"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Intake IntakeConfig `yaml:"intake"`

	OpsAddr string `yaml:"ops_addr"`

	// Documents written by older versions of the skill use the upper-case key.
	LegacyDesktopIP string `yaml:"DESKTOP_IP,omitempty"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the YAML document at path, fills defaults and applies
// environment overrides. A missing document is replaced by a default one and
// ErrBootstrapped is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrBootstrapped, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the minimal first-run document.
func WriteDefault(path string) error {
	out, err := yaml.Marshal(map[string]string{"desktop_ip": DefaultDesktopIP})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DesktopIP == "" {
		c.DesktopIP = c.LegacyDesktopIP
	}
	if c.DesktopIP == "" {
		c.DesktopIP = DefaultDesktopIP
	}
	if c.DiagnosisPort == 0 {
		c.DiagnosisPort = 5000
	}
	if c.BusURL == "" {
		c.BusURL = "ws://127.0.0.1:8181/core"
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 15 * time.Second
	}
	if c.RobotURL == "" {
		c.RobotURL = "ws://127.0.0.1:8092/ws"
	}
	if c.RobotShard == "" {
		c.RobotShard = "AIMAR"
	}
	if c.RobotTimeout == 0 {
		c.RobotTimeout = 30 * time.Second
	}
	if c.RoomsFile == "" {
		c.RoomsFile = "rooms.yml"
	}
	if c.DialogFile == "" {
		c.DialogFile = "mayo_clinic_dialog.json"
	}
	if len(c.Camera.Command) == 0 {
		c.Camera.Command = []string{"fswebcam", "--no-banner", "-r", "1280x720"}
	}
	if c.Camera.DeviceGlob == "" {
		c.Camera.DeviceGlob = "/dev/video*"
	}
	if c.Camera.Dir == "" {
		c.Camera.Dir = os.TempDir()
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "aimar:patients:queue"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-5-nano"
	}
	if c.Intake.MaxSymptomPrompts == 0 {
		c.Intake.MaxSymptomPrompts = 3
	}
	if c.OpsAddr == "" {
		c.OpsAddr = "127.0.0.1:9108"
	}
}

func (c *Config) applyEnv() error {
	c.DesktopIP = getEnv("AIMAR_DESKTOP_IP", c.DesktopIP)
	c.DatabaseURL = getEnv("AIMAR_DATABASE_URL", c.DatabaseURL)
	c.Redis.Addr = getEnv("AIMAR_REDIS_ADDR", c.Redis.Addr)
	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)

	if v := os.Getenv("AIMAR_DIAGNOSIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIMAR_DIAGNOSIS_PORT: %w", err)
		}
		c.DiagnosisPort = port
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DiagnosisPort <= 0 || c.DiagnosisPort > 65535 {
		return fmt.Errorf("config: diagnosis_port %d out of range", c.DiagnosisPort)
	}
	if c.Intake.MaxSymptomPrompts < 1 {
		return fmt.Errorf("config: intake.max_symptom_prompts must be positive")
	}
	for key, d := range map[string]time.Duration{
		"response_timeout": c.ResponseTimeout,
		"robot_timeout":    c.RobotTimeout,
	} {
		if d < MinTimeout {
			return fmt.Errorf("config: %s %v is below %v", key, d, MinTimeout)
		}
	}
	return nil
}

// DesktopURL is the base URL of the desktop diagnosis service.
func (c *Config) DesktopURL() string {
	return fmt.Sprintf("http://%s:%d", c.DesktopIP, c.DiagnosisPort)
}
