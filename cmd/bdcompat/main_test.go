package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/bdcompat/internal/config"
	"github.com/dshills/bdcompat/internal/vfs"
)

const helloPlugin = `/**
 * @name Hello
 * @version 1.0.0
 * @description Says hello
 */
module.exports = class Hello {
	start() {}
	stop() {}
};
`

// execute runs the command line against the settings file in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(dir, "settings.toml"),
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dir, args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

func localFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFSCommands(t *testing.T) {
	dir := t.TempDir()
	local := localFile(t, "Hello.plugin.js", helloPlugin)

	mustExecute(t, dir, "fs", "mkdir", "/BD/plugins")
	out := mustExecute(t, dir, "fs", "put", local, "--to", "/BD/plugins", "--filter", ".js")
	assert.Equal(t, "/BD/plugins/Hello.plugin.js\n", out)

	out = mustExecute(t, dir, "fs", "ls", "/BD/plugins")
	assert.Contains(t, out, "Hello.plugin.js")

	out = mustExecute(t, dir, "fs", "cat", "/BD/plugins/Hello.plugin.js")
	assert.Equal(t, helloPlugin, out)

	out = mustExecute(t, dir, "fs", "du", "BD")
	assert.Equal(t, fmt.Sprintf("%d\t/BD\n", len(helloPlugin)), out)

	out = mustExecute(t, dir, "fs", "tree")
	assert.Equal(t, "/\n/BD/\n/BD/plugins/\n/BD/plugins/Hello.plugin.js\n", out)

	mustExecute(t, dir, "fs", "rm", "/BD/plugins/Hello.plugin.js")
	out = mustExecute(t, dir, "fs", "ls", "/BD/plugins")
	assert.Empty(t, out)

	_, err := execute(t, dir, "fs", "cat", "/BD/plugins/Hello.plugin.js")
	assert.Error(t, err)
}

func TestFSDuReportsSize(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "fs", "put", localFile(t, "a.txt", "12345"), "--to", "/")

	out := mustExecute(t, dir, "fs", "du")
	assert.Equal(t, "5\t/\n", out)
}

func TestFSExactTarget(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "fs", "put", localFile(t, "a.txt", "x"), "--to", "/renamed.txt", "--exact")

	out := mustExecute(t, dir, "fs", "cat", "/renamed.txt")
	assert.Equal(t, "x", out)
}

func TestFSExportImport(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	mustExecute(t, dir, "fs", "mkdir", "/BD/empty")
	mustExecute(t, dir, "fs", "put", localFile(t, "a.txt", "kept"), "--to", "/BD")

	printed := mustExecute(t, dir, "fs", "export", "-o", out)
	dump := filepath.Join(out, vfs.DumpName)
	assert.Equal(t, dump+"\n", printed)
	require.FileExists(t, dump)

	mustExecute(t, dir, "fs", "rm", "/BD")
	mustExecute(t, dir, "fs", "put", localFile(t, "b.txt", "dropped"), "--to", "/")
	mustExecute(t, dir, "fs", "import", dump)

	assert.Equal(t, "/\n/BD/\n/BD/a.txt\n/BD/empty/\n", mustExecute(t, dir, "fs", "tree"))
	assert.Equal(t, "kept", mustExecute(t, dir, "fs", "cat", "/BD/a.txt"))

	_, err := execute(t, dir, "fs", "import", localFile(t, "bad.zip", "not a zip"))
	assert.Error(t, err)
	assert.Equal(t, "kept", mustExecute(t, dir, "fs", "cat", "/BD/a.txt"))
}

func TestFSGet(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	_, err := execute(t, dir, "fs", "put", localFile(t, "a.txt", "content"), "--to", "/missing/dir")
	assert.Error(t, err)

	mustExecute(t, dir, "fs", "mkdir", "/docs")
	mustExecute(t, dir, "fs", "put", localFile(t, "a.txt", "content"), "--to", "/docs")
	mustExecute(t, dir, "fs", "get", "/docs/a.txt", "-o", out)

	data, err := os.ReadFile(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestPluginsEnableAndList(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "fs", "mkdir", "/BD/plugins")
	mustExecute(t, dir, "fs", "put", localFile(t, "Hello.plugin.js", helloPlugin))

	out := mustExecute(t, dir, "plugins", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"NAME", "VERSION", "ENGINE", "STATE", "ENABLED", "FILE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"Hello", "1.0.0", "js", "registered", "false", "Hello.plugin.js"}, strings.Fields(lines[1]))

	assert.Equal(t, "Hello enabled\n", mustExecute(t, dir, "plugins", "enable", "Hello"))

	s, err := config.Load(filepath.Join(dir, "settings.toml"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Hello": true}, s.PluginsStatus)

	out = mustExecute(t, dir, "plugins", "list")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"Hello", "1.0.0", "js", "started", "true", "Hello.plugin.js"}, strings.Fields(lines[1]))

	assert.Equal(t, "Hello disabled\n", mustExecute(t, dir, "plugins", "disable", "Hello"))
	s, err = config.Load(filepath.Join(dir, "settings.toml"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Hello": false}, s.PluginsStatus)

	_, err = execute(t, dir, "plugins", "enable", "Nobody")
	assert.ErrorContains(t, err, `"Nobody" is not loaded`)
}

func TestSafeModeFlag(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "fs", "mkdir", "/BD/plugins")
	mustExecute(t, dir, "fs", "put", localFile(t, "Hello.plugin.js", helloPlugin))

	out := mustExecute(t, dir, "--safe-mode", "plugins", "list")
	assert.Equal(t, "NAME  VERSION  ENGINE  STATE  ENABLED  FILE\n", out)
}

func TestSettingsCommands(t *testing.T) {
	dir := t.TempDir()

	mustExecute(t, dir, "settings", "set", "safeMode", "true")
	mustExecute(t, dir, "settings", "set", "pluginUrls", "https://a.example/A.plugin.js, ,https://b.example/B.plugin.js")
	out := mustExecute(t, dir, "settings", "show")
	assert.Contains(t, out, "safeMode = true")

	s, err := config.Load(filepath.Join(dir, "settings.toml"))
	require.NoError(t, err)
	assert.True(t, s.SafeMode)
	assert.Equal(t, []string{"https://a.example/A.plugin.js", "https://b.example/B.plugin.js"}, s.PluginURLs)

	_, err = execute(t, dir, "settings", "set", "safeMode", "banana")
	assert.ErrorIs(t, err, config.ErrNotBool)
	_, err = execute(t, dir, "settings", "set", "volume", "11")
	assert.ErrorIs(t, err, config.ErrUnknownKey)
	_, err = execute(t, dir, "settings", "set", "storage", "floppy")
	assert.ErrorIs(t, err, config.ErrInvalidStorage)
}

func TestVersionFlag(t *testing.T) {
	out := mustExecute(t, t.TempDir(), "--version")
	assert.True(t, strings.HasPrefix(out, "bdcompat version dev\n"), out)
}
