package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := Load(path)
	assert.Nil(t, cfg)
	require.ErrorIs(t, err, ErrBootstrapped)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]string
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, map[string]string{"desktop_ip": "127.0.0.1"}, doc)

	// second run picks up the generated document
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.DesktopURL())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "desktop_ip: 10.0.0.7\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.DesktopIP)
	assert.Equal(t, 5000, cfg.DiagnosisPort)
	assert.Equal(t, 15*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, 30*time.Second, cfg.RobotTimeout)
	assert.Equal(t, "AIMAR", cfg.RobotShard)
	assert.Equal(t, "aimar:patients:queue", cfg.Redis.QueueKey)
	assert.Equal(t, 3, cfg.Intake.MaxSymptomPrompts)
	assert.NotEmpty(t, cfg.Camera.Command)
}

func TestLoadLegacyKey(t *testing.T) {
	path := writeConfig(t, "DESKTOP_IP: 192.168.1.20\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", cfg.DesktopIP)
}

func TestLoadFullDocument(t *testing.T) {
	path := writeConfig(t, `
desktop_ip: 10.1.1.1
diagnosis_port: 5050
response_timeout: 20s
robot_timeout: 1m
camera:
  command: [libcamera-still, -n, -o]
  dir: /var/lib/aimar
redis:
  addr: localhost:6379
intake:
  max_symptom_prompts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.1.1.1:5050", cfg.DesktopURL())
	assert.Equal(t, 20*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, time.Minute, cfg.RobotTimeout)
	assert.Equal(t, []string{"libcamera-still", "-n", "-o"}, cfg.Camera.Command)
	assert.Equal(t, "/var/lib/aimar", cfg.Camera.Dir)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Intake.MaxSymptomPrompts)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "desktop_ip: 10.0.0.7\n")
	t.Setenv("AIMAR_DESKTOP_IP", "10.9.9.9")
	t.Setenv("AIMAR_DIAGNOSIS_PORT", "6000")
	t.Setenv("AIMAR_DATABASE_URL", "postgres://aimar@db/aimar")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.9.9.9:6000", cfg.DesktopURL())
	assert.Equal(t, "postgres://aimar@db/aimar", cfg.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "diagnosis_port: 70000\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "desktop_ip: [\n"))
	assert.Error(t, err)

	t.Setenv("AIMAR_DIAGNOSIS_PORT", "five")
	_, err = Load(writeConfig(t, "desktop_ip: 10.0.0.7\n"))
	assert.Error(t, err)
}

func TestLoadRejectsShortTimeouts(t *testing.T) {
	// yaml.v3 refuses a bare integer for a duration
	_, err := Load(writeConfig(t, "response_timeout: 15\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "response_timeout: 15ns\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response_timeout")

	_, err = Load(writeConfig(t, "robot_timeout: 500ms\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robot_timeout")

	_, err = Load(writeConfig(t, "response_timeout: -5s\n"))
	assert.Error(t, err)

	cfg, err := Load(writeConfig(t, "response_timeout: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.ResponseTimeout)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
