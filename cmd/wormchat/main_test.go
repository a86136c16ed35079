package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormchat/internal/devserver"
	"wormchat/internal/transport"
)

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores flag variables, which persist across Execute calls.
func resetFlags(t *testing.T) {
	t.Helper()
	verbose, configPath, homeFlag, apiBaseURL, apiKey, ephemeral = false, "", "", "", "", false
	sendRaw, configForce = false, false
	stubAddr, stubAPIKey = "", ""

	for _, k := range []string{
		"WORMCHAT_API_BASE_URL", "WORMCHAT_API_KEY", "WORMCHAT_STORAGE_BACKEND",
		"WORMCHAT_STORAGE_PATH", "WORMCHAT_DEBUG", "WORMCHAT_THEME",
	} {
		t.Setenv(k, "")
	}
}

func startStub(t *testing.T, cfg devserver.Config) string {
	t.Helper()
	srv := httptest.NewServer(devserver.New(cfg))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"one", "two", "three"})
	if got != "one two three" {
		t.Fatalf("expected 'one two three', got '%s'", got)
	}
}

func TestLoginStatusLogout(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, "--home", home, "login", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ada@example.com")

	out, err = execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "logged_in")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "(none)")

	out, err = execute(t, "--home", home, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "logged_out")
	assert.NotContains(t, out, "ada@example.com")
}

func TestLoginRejectsEmptyEmail(t *testing.T) {
	home := t.TempDir()

	for _, args := range [][]string{{"login"}, {"login", "   "}} {
		_, err := execute(t, append([]string{"--home", home}, args...)...)
		require.Error(t, err)
		assert.Equal(t, "Please enter your email address.", err.Error())
	}

	out, err := execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "logged_out")
}

func TestSendContinuesConversation(t *testing.T) {
	home := t.TempDir()
	url := startStub(t, devserver.Config{})

	_, err := execute(t, "--home", home, "login", "ada@example.com")
	require.NoError(t, err)

	out, err := execute(t, "--home", home, "--api-base-url", url, "send", "--raw", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "### Turn 1")
	assert.Contains(t, out, "> hello there")

	out, err = execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "(none)", "conversation id is stored")

	out, err = execute(t, "--home", home, "--api-base-url", url, "send", "--raw", "again")
	require.NoError(t, err)
	assert.Contains(t, out, "### Turn 2")

	_, err = execute(t, "--home", home, "new")
	require.NoError(t, err)

	out, err = execute(t, "--home", home, "--api-base-url", url, "send", "--raw", "fresh")
	require.NoError(t, err)
	assert.Contains(t, out, "### Turn 1")
}

func TestSendRendersMarkdown(t *testing.T) {
	home := t.TempDir()
	url := startStub(t, devserver.Config{})

	_, err := execute(t, "--home", home, "login", "ada@example.com")
	require.NoError(t, err)

	out, err := execute(t, "--home", home, "--api-base-url", url, "send", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "Turn 1")
	assert.Contains(t, out, "ada@example.com")
}

func TestSendRequiresLogin(t *testing.T) {
	url := startStub(t, devserver.Config{})

	_, err := execute(t, "--home", t.TempDir(), "--api-base-url", url, "send", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestSendErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		email string
		stub  devserver.Config
		want  string
	}{
		{
			name:  "validation details",
			email: "not-an-email",
			want:  "mailAddress must be a valid email address",
		},
		{
			name:  "upstream failure",
			email: "ada@example.com",
			stub: devserver.Config{Responder: devserver.ResponderFunc(func(context.Context, devserver.Turn) (string, error) {
				return "", errors.New("model down")
			})},
			want: transport.MsgUpstreamFailure,
		},
		{
			name:  "unexpected status",
			email: "ada@example.com",
			stub:  devserver.Config{APIKey: "secret"},
			want:  transport.MsgUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			url := startStub(t, tt.stub)

			_, err := execute(t, "--home", home, "login", tt.email)
			require.NoError(t, err)

			_, err = execute(t, "--home", home, "--api-base-url", url, "send", "hi")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestSendWithAPIKey(t *testing.T) {
	home := t.TempDir()
	url := startStub(t, devserver.Config{APIKey: "secret"})

	_, err := execute(t, "--home", home, "login", "ada@example.com")
	require.NoError(t, err)

	out, err := execute(t, "--home", home, "--api-base-url", url, "--api-key", "secret", "send", "--raw", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "### Turn 1")
}

func TestEphemeralDoesNotPersist(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, "--home", home, "--ephemeral", "login", "ada@example.com")
	require.NoError(t, err)

	out, err := execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "logged_out")

	_, err = os.Stat(filepath.Join(home, "state.json"))
	assert.True(t, os.IsNotExist(err), "ephemeral run must not create the state file")
}

func TestConfigInitAndShow(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")

	out, err := execute(t, "--home", home, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "--home", home, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--home", home, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, "--home", home, "--api-key", "secret", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "ApiBaseUrl: http://localhost:7071")
	assert.Contains(t, out, "********")
	assert.False(t, strings.Contains(out, "secret"), "api key must be masked")
}

func TestInvalidConfigRejected(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, "--home", home, "--api-base-url", "ftp://example.com", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
