package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadReadsFile(t *testing.T) {
	path := writeConfig(t, `
hub:
  ws_url: wss://hub.example.com/ws
  auth:
    token_url: https://sso.example.com/token
    client_id: bridge
    username: svc
    password: secret
call_platform:
  relay_url: wss://relay.example.com/ccp
  login_popup: false
client:
  icon_pack: https://cdn.example.com/icons/
  features:
    click_to_dial: true
poller:
  interval: 250ms
service:
  log_level: debug
  app_name: Connect
http:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "wss://hub.example.com/ws", cfg.Hub.WSURL)
	require.True(t, cfg.Hub.Auth.Enabled())
	require.False(t, cfg.CallPlatform.Auth.Enabled())
	require.False(t, cfg.CallPlatform.LoginPopup)
	require.Equal(t, "https://cdn.example.com/icons/", cfg.Client.IconPack)
	require.True(t, cfg.Client.Features["click_to_dial"])
	require.Equal(t, 250*time.Millisecond, cfg.Poller.Interval)
	require.Equal(t, "debug", cfg.Service.LogLevel)
	require.Equal(t, "Connect", cfg.Service.AppName)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.True(t, cfg.HTTP.Enabled)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, 500*time.Millisecond, cfg.Poller.Interval)
	require.Equal(t, "Amazon Connect", cfg.Service.AppName)
	require.Equal(t, "info", cfg.Service.LogLevel)
	require.True(t, cfg.CallPlatform.LoginPopup)
	require.Equal(t, 8080, cfg.HTTP.Port)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "service:\n  app_name: FromFile\n")
	t.Setenv("BRIDGE_SERVICE_APP_NAME", "FromEnv")
	t.Setenv("BRIDGE_HUB_WS_URL", "ws://override:1234/ws")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "FromEnv", cfg.Service.AppName)
	require.Equal(t, "ws://override:1234/ws", cfg.Hub.WSURL)
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"log level":         "service:\n  log_level: loud\n",
		"poll interval":     "poller:\n  interval: 0s\n",
		"relay url":         "call_platform:\n  relay_url: not a url\n",
		"auth without id":   "hub:\n  auth:\n    token_url: https://sso.example.com/token\n",
		"port out of range": "http:\n  port: 70000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestMalformedFileFails(t *testing.T) {
	_, err := Load(writeConfig(t, "hub: [unclosed\n"))
	require.Error(t, err)
	require.NotContains(t, err.Error(), "invalid config")
}
