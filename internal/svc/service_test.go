package svc

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceConfigArguments(t *testing.T) {
	cfg := NewServiceConfig(&ServiceConfig{
		Name:       "filebay",
		ConfigPath: "/etc/filebay/config.yaml",
	})

	assert.Equal(t, []string{"--service-run", "serve", "--config", "/etc/filebay/config.yaml"}, cfg.Arguments)
}

func TestNewServiceConfigDarwinLogPaths(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("launchd options are darwin only")
	}
	cfg := NewServiceConfig(&ServiceConfig{Name: "filebay"})

	outLog, errLog := darwinLogPaths("filebay")
	require.Equal(t, outLog, cfg.Option["StandardOutPath"])
	require.Equal(t, errLog, cfg.Option["StandardErrorPath"])
}

func TestDarwinLogPaths(t *testing.T) {
	outLog, errLog := darwinLogPaths("filebay")
	assert.Equal(t, "/var/log/filebay.out.log", outLog)
	assert.Equal(t, "/var/log/filebay.err.log", errLog)
}

func TestIsServiceMode(t *testing.T) {
	assert.True(t, IsServiceMode([]string{"filebay", "--service-run", "serve"}))
	assert.False(t, IsServiceMode([]string{"filebay", "serve"}))
}
