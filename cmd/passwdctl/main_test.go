package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/m-217/passwdctl/passwd"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/connection/connectiontest"
	"github.com/m-217/passwdctl/passwd/schema"
	"github.com/m-217/passwdctl/passwd/secret"
)

const testConfig = `[connection]
type = local

[method]
method = pw
become_method = none
`

type harness struct {
	cli     *cli
	out     *bytes.Buffer
	conn    *connectiontest.Fake
	prompts []string
	cfg     *config.Config
	path    string
}

func newHarness(t *testing.T, ini string) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwdctl.ini")
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o600))

	h := &harness{out: &bytes.Buffer{}, conn: &connectiontest.Fake{}, path: path}
	c := newCLI()
	c.out = h.out
	c.prompt = func(label string) (*secret.Secret, error) {
		h.prompts = append(h.prompts, label)
		return secret.FromString("typed"), nil
	}
	c.open = func(ctx context.Context, cfg *config.Config) (*passwd.Connector, error) {
		h.cfg = cfg
		return passwd.New(ctx, cfg, passwd.WithConnection(h.conn))
	}
	h.cli = c
	return h
}

func (h *harness) run(args ...string) error {
	root := h.cli.rootCmd()
	root.SetArgs(append([]string{"--config", h.path}, args...))
	return root.Execute()
}

func TestTestCommand(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("test"))
	assert.Equal(t, "OK\n", h.out.String())
	assert.Equal(t, []string{"whereis", "pw"}, h.conn.LastCall().Args)
	assert.True(t, h.conn.Closed())
}

func TestTestCommandDeadConnection(t *testing.T) {
	h := newHarness(t, testConfig)
	h.conn.Dead = true
	err := h.run("test")
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
	assert.Equal(t, 5, exitCode(err))
}

func TestSearchTable(t *testing.T) {
	h := newHarness(t, testConfig)
	h.conn.Push(connectiontest.Response{Stdout: []string{
		"root:*:0:0::0:0:Charlie &:/root:/bin/sh",
		"alice:*:1001:1001:staff:0:0:Alice Smith:/home/alice:/bin/sh",
	}})

	require.NoError(t, h.run("search", "account", "--filter", "uid=1001"))
	assert.Equal(t, []string{"pw", "user", "show", "-a"}, h.conn.LastCall().Args)

	out := h.out.String()
	assert.Contains(t, out, "__NAME__")
	assert.Contains(t, out, "Alice Smith")
	assert.NotContains(t, out, "Charlie")
}

func TestSearchJSON(t *testing.T) {
	h := newHarness(t, testConfig)
	h.conn.Push(connectiontest.Response{Stdout: []string{"wheel:*:0:root", "ops:*:40:alice,bob"}})

	require.NoError(t, h.run("search", "group", "-f", "members=bob", "-o", "json"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ops", got[0]["__UID__"])
	assert.Equal(t, []any{"alice", "bob"}, got[0]["members"])
}

func TestSearchInvalidFilter(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("search", "group", "--filter", "members")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Empty(t, h.conn.Calls())
}

func TestSchemaYAML(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("schema", "-o", "yaml"))

	var infos []schema.ObjectClassInfo
	require.NoError(t, yaml.Unmarshal(h.out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, schema.Account, infos[0].Class)
	_, ok := infos[0].Attribute("loginClass")
	assert.True(t, ok)
}

func TestCreateWithPassword(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("create", "account",
		"--attr", "__NAME__=alice", "--attr", "gid=1001", "--attr", "comment=Alice Smith",
		"--set-password"))

	assert.Equal(t, "Created alice\n", h.out.String())
	call := h.conn.LastCall()
	assert.Equal(t, []string{"pw", "user", "add", "-n", "alice", "-g", "1001", "-c", "Alice Smith", "-h", "0"}, call.Args)
	assert.Equal(t, "typed", call.Stdin)
	assert.Len(t, h.prompts, 1)
}

func TestCreateAlreadyExists(t *testing.T) {
	h := newHarness(t, testConfig)
	h.conn.Push(connectiontest.Response{ExitCode: 65})
	err := h.run("create", "group", "--attr", "__NAME__=ops")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Equal(t, 3, exitCode(err))
}

func TestCreateRejectsPasswordAttribute(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("create", "account", "--attr", "__NAME__=alice", "--attr", "__PASSWORD__=plain")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Empty(t, h.conn.Calls())
}

func TestCreateRejectsBadInteger(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("create", "account", "--attr", "__NAME__=alice", "--attr", "gid=staff")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestUpdateMembers(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("update", "group", "ops", "--add", "members=carol", "--add", "members=erin"))
	assert.Equal(t, []string{"pw", "group", "mod", "-n", "ops", "-m", "carol,erin"}, h.conn.LastCall().Args)
	assert.Equal(t, "Updated ops\n", h.out.String())
}

func TestUpdateRename(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("update", "account", "alice", "--rename", "alicia"))
	assert.Equal(t, []string{"pw", "user", "mod", "-n", "alice", "-l", "alicia"}, h.conn.LastCall().Args)
	assert.Equal(t, "Updated alicia\n", h.out.String())
}

func TestUpdateNothing(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("update", "account", "alice")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Equal(t, 2, exitCode(err))
}

func TestUpdateMixedDelta(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("update", "group", "ops", "--set", "members=a", "--add", "members=b")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("delete", "user", "alice"))
	assert.Equal(t, []string{"pw", "user", "del", "-n", "alice"}, h.conn.LastCall().Args)
	assert.Equal(t, "Deleted alice\n", h.out.String())
}

func TestDeleteInvalidClass(t *testing.T) {
	h := newHarness(t, testConfig)
	err := h.run("delete", "host", "alice")
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("authenticate", "alice"))
	assert.Equal(t, []string{"alice"}, h.conn.AuthUsers())
	assert.Equal(t, []string{"Password for alice: "}, h.prompts)

	h.conn.AuthErr = common.ErrConnectionFailed
	err := h.run("authenticate", "alice")
	assert.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestAskPasswords(t *testing.T) {
	h := newHarness(t, testConfig)
	require.NoError(t, h.run("--ask-password", "--ask-become-password", "test"))
	require.NotNil(t, h.cfg)
	assert.False(t, h.cfg.Password.IsEmpty())
	assert.False(t, h.cfg.BecomePassword.IsEmpty())
	assert.Len(t, h.prompts, 2)
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t, "[connection]\ntype = telnet\n")
	err := h.run("test")
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, 2, exitCode(err))
}

func TestMissingConfig(t *testing.T) {
	h := newHarness(t, testConfig)
	h.path = filepath.Join(t.TempDir(), "missing.ini")
	err := h.run("test")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 4, exitCode(common.ErrUnsupported))
	assert.Equal(t, 5, exitCode(common.ErrTransportBroken))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestPrintOutputRejectsUnknownFormat(t *testing.T) {
	err := printOutput(&bytes.Buffer{}, "xml", nil)
	assert.Error(t, err)
}
