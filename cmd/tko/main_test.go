package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/takeout/internal/auth"
	"github.com/Tomlord1122/takeout/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "dev"},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			Issuer:    "takeout",
			Audience:  "takeout-sync",
			AccessTTL: time.Minute,
		},
		Deploy: config.DeployConfig{PollInterval: 10 * time.Millisecond, Timeout: time.Second},
	}
}

func TestTokenCmd(t *testing.T) {
	cfg := testConfig()
	cmd := newTokenCmd(func() *config.Config { return cfg })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--user", "alice", "--name", "Alice"})
	require.NoError(t, cmd.Execute())

	tokens := auth.NewTokens("test-secret", "takeout", "takeout-sync", time.Minute)
	p, err := tokens.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
}

func TestTokenCmd_RefusesProd(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Env = "prod"
	cmd := newTokenCmd(func() *config.Config { return cfg })
	cmd.SetArgs([]string{"--user", "alice"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestWaitHTTPCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig()
	cmd := newWaitCmd(func() *config.Config { return cfg })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"http", srv.URL})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "is healthy")
}

func TestMigrateDown_RejectsBadCount(t *testing.T) {
	cmd := newMigrateCmd(func() *config.Config { return testConfig() })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"down", "zero"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}
