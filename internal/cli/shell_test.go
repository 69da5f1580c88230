package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfs/cloudsh/internal/config"
	"github.com/cloudfs/cloudsh/internal/core"
	"github.com/cloudfs/cloudsh/internal/util"
)

const shellFixture = `
email: alice@example.com
password: hunter2
contacts:
  - email: bob@example.com
root:
  - name: a
    children:
      - name: f
        size: 10
  - name: b
    children: []
inshares:
  - owner: bob@example.com
    access: rw
    name: shared
    children: []
`

func TestMain(m *testing.M) {
	util.InitializeLoggerTo(io.Discard, util.ErrorLevel)
	os.Exit(m.Run())
}

// newEngine opens an engine whose fixture and state live under dir.
func newEngine(t *testing.T, dir string, resume bool) *Engine {
	t.Helper()
	fixture := filepath.Join(dir, "account.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(shellFixture), 0600))

	cfg := &config.Config{
		Backend:  "memory",
		Fixture:  fixture,
		StateDir: filepath.Join(dir, "state"),
		Prompt:   "> ",
		Resume:   resume,
	}
	e, err := InitEngine(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func runScript(t *testing.T, e *Engine, script string) (string, string) {
	t.Helper()
	var out, errw bytes.Buffer
	sh := NewShell(e, strings.NewReader(script), &out, &errw)
	require.NoError(t, sh.Run(context.Background()))
	return out.String(), errw.String()
}

func TestShellSession(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)

	out, errw := runScript(t, e, strings.Join([]string{
		"login alice@example.com hunter2",
		"pwd",
		"mkdir x/y",
		"cd x/y",
		"pwd",
		"cd",
		"mv /a/f /b/g",
		"ls -R /",
		"mount",
		"session",
		"whoami",
		"journal",
	}, "\n")+"\n")

	assert.Empty(t, errw)
	assert.Contains(t, out, "> /\n")
	assert.Contains(t, out, "> /x/y\n")
	assert.Contains(t, out, "\ta (folder)\n\tb (folder)\n\t\tg (10)\n\tx (folder)\n\t\ty (folder)\n")
	assert.Contains(t, out, "INSHARE on bob@example.com:shared (read/write access)\n")
	assert.Contains(t, out, "Your (secret) session is: "+e.Session.Token()+"\n")
	assert.Contains(t, out, "Account e-mail: alice@example.com\n")
	assert.Contains(t, out, "/a/f -> /b/g")
	assert.Contains(t, out, "committed")
}

func TestShellPasswordPrompt(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)

	out, errw := runScript(t, e, "login alice@example.com\nhunter2\nwhoami\n")
	assert.Empty(t, errw)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Account e-mail: alice@example.com")
}

func TestShellDiagnostics(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)

	out, errw := runScript(t, e, strings.Join([]string{
		"ls",
		"frobnicate",
		"login alice@example.com wrong",
		"login alice@example.com hunter2",
		"login alice@example.com hunter2",
		"mv /a",
		"mv /nope /b",
		"cd /a/f",
		"share /a bob@example.com rwx",
		`cd "unterminated`,
		"mkdir a",
		"rm /nope /a/f",
	}, "\n")+"\n")

	assert.Contains(t, errw, "ls: not logged in\n")
	assert.Contains(t, errw, "?Invalid command\n")
	assert.Contains(t, errw, "invalid email or password")
	assert.Contains(t, errw, "login: already logged in, log out first\n")
	assert.Contains(t, out, "      mv srcremotepath dstremotepath\n")
	assert.Contains(t, errw, "/nope: no such file or directory\n")
	assert.Contains(t, errw, "/a/f: not a directory\n")
	assert.Contains(t, errw, "share: access level must be one of r, rw or full\n")
	assert.Contains(t, errw, "unclosed quote")
	assert.Contains(t, errw, "Folder already exists")
	assert.Contains(t, errw, "rm: 1 of 2 paths not removed")
}

func TestShellQuitStopsReading(t *testing.T) {
	for _, q := range []string{"quit", "exit", "q"} {
		e := newEngine(t, t.TempDir(), false)
		_, errw := runScript(t, e, q+"\npwd\n")
		assert.Empty(t, errw, q)
	}
}

func TestShellLastLineWithoutNewline(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, errw := runScript(t, e, "login alice@example.com hunter2\npwd")
	assert.Empty(t, errw)
	assert.True(t, strings.HasSuffix(out, "> /\n"), out)
}

func TestShellLogout(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, errw := runScript(t, e, "login alice@example.com hunter2\nlogout\npwd\nsession\n")
	assert.Contains(t, out, "Logging off...\n")
	assert.Contains(t, out, "Not logged in.\n")
	assert.Contains(t, errw, "pwd: not logged in\n")
	assert.False(t, e.Session.IsLoggedIn())
}

func TestShellShares(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, errw := runScript(t, e, strings.Join([]string{
		"login alice@example.com hunter2",
		"share /b bob@example.com rw",
		"share /b",
		"invite carol@example.com",
		"showpcr",
		"users",
		"share /b bob@example.com",
		"share",
	}, "\n")+"\n")

	assert.Empty(t, errw)
	assert.Contains(t, out, "\tb, shared with bob@example.com (read/write access)\n")
	assert.Contains(t, out, "Outgoing PCRs:\n carol@example.com")
	assert.Contains(t, out, "bob@example.com, visible, sharing 1 folder(s)\n")
	assert.Contains(t, out, "Shared folders:\nShared folders from bob@example.com:\n\tshared (read/write access)\n")
}

func TestShellDebugToggle(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, _ := runScript(t, e, "debug\ndebug\n")
	assert.Contains(t, out, "Debug mode on\n")
	assert.Contains(t, out, "Debug mode off\n")
	assert.Equal(t, util.ErrorLevel, util.CurrentLevel())
}

func TestShellHelp(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, _ := runScript(t, e, "help\n")
	for _, line := range []string{"login email [password]", "ls [-R] [remotepath]", "share [remotepath [dstemail [r|rw|full] [origemail]]]", "quit"} {
		assert.Contains(t, out, "      "+line+"\n")
	}
}

func TestShellVersionShowsStateDatabase(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	out, errw := runScript(t, e, "version\n")
	assert.Empty(t, errw)
	assert.Contains(t, out, "cloudsh version: "+Version)
	assert.Contains(t, out, "State database: "+e.State.Path()+" (unencrypted)\n")
}

func TestResumeAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	first := newEngine(t, dir, false)
	_, errw := runScript(t, first, "login alice@example.com hunter2\ncd /a\n")
	require.Empty(t, errw)
	require.NoError(t, first.Close())

	second := newEngine(t, dir, true)
	require.True(t, second.Session.IsLoggedIn())
	pwd, err := second.Session.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/a", pwd)
}

func TestRunOnce(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	var out, errw bytes.Buffer
	sh := NewShell(e, strings.NewReader(""), &out, &errw)
	ctx := context.Background()

	require.NoError(t, runOnce(ctx, sh, "login alice@example.com hunter2"))
	require.NoError(t, runOnce(ctx, sh, "mkdir a"))
	assert.Contains(t, errw.String(), "Folder already exists")

	err := runOnce(ctx, sh, "cd /nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, runOnce(ctx, sh, "quit"))
}

func TestPrintVersion(t *testing.T) {
	t.Setenv(config.PassphraseEnv, "")
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "cloudsh version: "+Version)
	assert.Contains(t, buf.String(), "Encryption: disabled")
}

func TestExecLeavesShellFlagsAlone(t *testing.T) {
	cmd, args, err := rootCmd.Find([]string{"exec", "ls", "-R", "/"})
	require.NoError(t, err)
	require.Equal(t, execCmd, cmd)

	require.NoError(t, cmd.ParseFlags(args))
	assert.Equal(t, []string{"ls", "-R", "/"}, cmd.Flags().Args())
}
