package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `[user]
name = "Test User"
email = "test.user@example.com"

[operation]
hostname = "host.example.com"
username = "test-username"

[log]
level = "error"
`

type harness struct {
	t    *testing.T
	dir  string
	conf string
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	conf := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(conf, []byte(testConfig), 0644))
	return &harness{t: t, dir: dir, conf: conf}
}

func (h *harness) exec(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", h.conf, "-R", h.dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) run(args ...string) string {
	h.t.Helper()
	out, err := h.exec(args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

func TestCLI_Workflow(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.run("init"), "Initialized repo")
	assert.Contains(t, h.run("new", "-m", "first"), "Working copy now at:")
	h.run("bookmark", "set", "main")
	assert.Contains(t, h.run("bookmark", "list"), "main: ")

	log := h.run("log")
	assert.Contains(t, log, "first")
	assert.Contains(t, log, "default@ main")
	assert.Contains(t, log, "(root)")

	h.run("describe", "-m", "renamed")
	assert.Contains(t, h.run("bookmark", "list"), "renamed")
	assert.Contains(t, h.run("op", "log"), "describe commit")

	assert.Contains(t, h.run("op", "undo"), "Undid operation")
	list := h.run("bookmark", "list")
	assert.Contains(t, list, "first")
	assert.NotContains(t, list, "renamed")

	h.run("new", "-m", "second")
	assert.Contains(t, h.run("rebase", "-r", "@", "-d", "root"), "Rebased 1 commits to destination")

	heads := strings.Fields(h.run("op", "heads"))
	assert.Len(t, heads, 1)
	assert.Contains(t, h.run("debug", "metrics"), "mxvc_operations_committed_total")
}

func TestCLI_RebaseFlags(t *testing.T) {
	h := newHarness(t)
	h.run("init")
	_, err := h.exec("rebase", "-r", "@")
	assert.Error(t, err)
	_, err = h.exec("rebase", "-r", "@", "-d", "root", "-A", "root")
	assert.Error(t, err)
	_, err = h.exec("rebase", "-r", "@", "-s", "@", "-d", "root")
	assert.Error(t, err)
}

func TestCLI_NoRepository(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec("log")
	assert.Error(t, err)
}
