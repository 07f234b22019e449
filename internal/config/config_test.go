package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate уводит Load от .env и config/*.yaml репозитория и очищает переменные, которые проверяются.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{
		"APP_ENV", "CONFIG_PATH", "DATABASE_CONFIG_PATH", "DATABASE_URL", "QUIET_HOURS_POLICY",
		"MESSAGE_RATE_LIMIT", "MESSAGE_RATE_WINDOW", "API_RATE_LIMIT_PER_IP", "API_RATE_LIMIT_PER_USER",
		"SMS_ENABLED", "SERVER_ADDR", "NOTIFICATION_SWEEP_INTERVAL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, devDatabaseURL, cfg.DatabaseURL())
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, 10, cfg.Messaging.RateLimitCount)
	assert.Equal(t, time.Minute, cfg.Messaging.RateLimitWindow)
	assert.Equal(t, "delay", cfg.Notifications.QuietHoursPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.SweepInterval)
	assert.Equal(t, 300, cfg.Gateway.RateLimitPerIP)
	assert.False(t, cfg.SMS.Enabled)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9090"
messaging:
  rate_limit_count: 5
gateway:
  rate_limit_per_ip: 50
  rate_limit_per_user: 40
notifications:
  quiet_hours_policy: suppress
sms:
  enabled: true
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("API_RATE_LIMIT_PER_IP", "77")
	t.Setenv("MESSAGE_RATE_WINDOW", "30")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, 5, cfg.Messaging.RateLimitCount)
	assert.Equal(t, 10000, cfg.Messaging.MaxContentLength, "unset yaml keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Messaging.RateLimitWindow)
	assert.Equal(t, 77, cfg.Gateway.RateLimitPerIP, "env wins over yaml")
	assert.Equal(t, 40, cfg.Gateway.RateLimitPerUser)
	assert.Equal(t, "suppress", cfg.Notifications.QuietHoursPolicy)
	assert.True(t, cfg.SMS.Enabled)
}

func TestLoad_UnknownQuietHoursPolicy(t *testing.T) {
	isolate(t)
	t.Setenv("QUIET_HOURS_POLICY", "Drop")
	assert.Equal(t, "delay", Load().Notifications.QuietHoursPolicy)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PETCHAT_TEST_INT", "x")
	assert.Equal(t, 3, envInt("PETCHAT_TEST_INT", 3))
	t.Setenv("PETCHAT_TEST_BOOL", "yes")
	assert.True(t, envBool("PETCHAT_TEST_BOOL", true))
	t.Setenv("PETCHAT_TEST_BOOL", "false")
	assert.False(t, envBool("PETCHAT_TEST_BOOL", true))
}

func TestLoadEnvFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nPETCHAT_A=\"quoted\"\nPETCHAT_B=plain\nbroken\n"), 0o600))
	t.Setenv("PETCHAT_A", "")
	t.Setenv("PETCHAT_B", "already")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	loadEnvFrom(f)

	assert.Equal(t, "quoted", os.Getenv("PETCHAT_A"))
	assert.Equal(t, "already", os.Getenv("PETCHAT_B"), "existing env is not overwritten")
}
