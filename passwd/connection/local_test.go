package connection

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/secret"
)

func TestLocalExecute(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewLocalConnection()
	r, err := c.Execute(context.Background(), nil, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, r.ExitCode)
	assert.Equal(t, []string{"out"}, r.Stdout)
	assert.Equal(t, []string{"err"}, r.Stderr)
	assert.Equal(t, []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, r.Args)
}

func TestLocalExecuteStdin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewLocalConnection()
	r, err := c.Execute(context.Background(), []byte("line1\nline2\n"), "cat")
	require.NoError(t, err)
	assert.Equal(t, 0, r.ExitCode)
	assert.Equal(t, []string{"line1", "line2"}, r.Stdout)
	assert.Empty(t, r.Stderr)
}

func TestLocalExecuteLargeStderr(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Enough output on both streams to fill the pipe buffers.
	script := "i=0; while [ $i -lt 5000 ]; do echo stdout-line-$i; echo stderr-line-$i >&2; i=$((i+1)); done"
	c := NewLocalConnection()
	r, err := c.Execute(context.Background(), nil, "sh", "-c", script)
	require.NoError(t, err)
	assert.Len(t, r.Stdout, 5000)
	assert.Len(t, r.Stderr, 5000)
	assert.True(t, strings.HasPrefix(r.Stderr[4999], "stderr-line-"))
}

func TestLocalExecuteEmptyCommand(t *testing.T) {
	_, err := NewLocalConnection().Execute(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestLocalExecuteMissingBinary(t *testing.T) {
	_, err := NewLocalConnection().Execute(context.Background(), nil, "/nonexistent/passwdctl-binary")
	assert.ErrorIs(t, err, common.ErrTransportBroken)
}

func TestLocalExecuteCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewLocalConnection().Execute(ctx, nil, "sleep", "5")
	assert.ErrorIs(t, err, common.ErrTransportBroken)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalIsAliveAndClose(t *testing.T) {
	c := NewLocalConnection()
	assert.True(t, c.IsAlive())
	assert.NoError(t, c.Close())
}

func TestLocalAuthenticateEmptyUser(t *testing.T) {
	err := NewLocalConnection().Authenticate(context.Background(), " ", secret.FromString("x"))
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestLocalAuthenticateMissingSu(t *testing.T) {
	c := NewLocalConnection()
	c.ShadowFiles = nil
	c.SuCommand = "/nonexistent/su"
	err := c.Authenticate(context.Background(), "alice", secret.FromString("x"))
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

// writeShadow creates a shadow database with the given lines.
func writeShadow(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadow")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func hashFor(t *testing.T, c crypt.Crypter, password string) string {
	t.Helper()
	hash, err := c.Generate([]byte(password), nil)
	require.NoError(t, err)
	return hash
}

func TestLocalAuthenticateShadowHash(t *testing.T) {
	c := NewLocalConnection()
	c.SuCommand = "/nonexistent/su"
	c.ShadowFiles = []string{
		filepath.Join(t.TempDir(), "missing"),
		writeShadow(t,
			"# system accounts",
			"root:!:19000:0:99999:7:::",
			"alice:"+hashFor(t, sha512_crypt.New(), "wonderland")+":19000:0:99999:7:::",
			"bob:"+hashFor(t, md5_crypt.New(), "builder")+":19000::::::",
			"nobody:*:19000:0:99999:7:::",
		),
	}
	ctx := context.Background()

	assert.NoError(t, c.Authenticate(ctx, "alice", secret.FromString("wonderland")))
	assert.NoError(t, c.Authenticate(ctx, "bob", secret.FromString("builder")))

	for _, tc := range []struct{ user, password string }{
		{"alice", "definitely-wrong"},
		{"alice", ""},
		{"bob", "wonderland"},
		{"root", "anything"},
		{"nobody", "definitely-wrong"},
		{"mallory", "wonderland"},
	} {
		err := c.Authenticate(ctx, tc.user, secret.FromString(tc.password))
		assert.ErrorIs(t, err, common.ErrConnectionFailed, "user %s", tc.user)
	}
}

func TestLocalAuthenticateSuWithoutPrompt(t *testing.T) {
	c := NewLocalConnection()
	c.ShadowFiles = []string{filepath.Join(t.TempDir(), "missing")}
	// Exits 0 for any user and never asks, like su run by root.
	c.SuCommand = "true"

	err := c.Authenticate(context.Background(), "nobody", secret.FromString("definitely-wrong"))
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestLocalAuthenticateSuFallback(t *testing.T) {
	dir := t.TempDir()
	su := filepath.Join(dir, "su")
	script := "#!/bin/sh\nprintf 'Password: '\nread pw\n[ \"$pw\" = wonderland ]\n"
	require.NoError(t, os.WriteFile(su, []byte(script), 0o755))

	c := NewLocalConnection()
	c.SuCommand = su
	c.ShadowFiles = []string{writeShadow(t, "alice:$y$j9T$abc$def:19000:0:99999:7:::")}
	ctx := context.Background()

	assert.NoError(t, c.Authenticate(ctx, "alice", secret.FromString("wonderland")))
	err := c.Authenticate(ctx, "alice", secret.FromString("definitely-wrong"))
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestNewSelectsLocal(t *testing.T) {
	cfg := config.New()
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalConnection{}, c)
}

func TestNewUnknownType(t *testing.T) {
	cfg := config.New()
	cfg.ConnectionType = "telnet"
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}
