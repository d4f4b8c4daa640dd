package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateCLI points the CLI at temporary XDG directories shared by every
// run in the test.
func isolateCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Chdir(dir)
	return dir
}

func runCLI(stdin string, args ...string) (string, error) {
	c := newCLI()
	var out bytes.Buffer
	c.Writer = &out
	c.ErrWriter = io.Discard
	c.Reader = strings.NewReader(stdin)
	err := c.Run(append([]string{"folio"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := runCLI(stdin, args...)
	require.NoError(t, err, "folio %s", strings.Join(args, " "))
	return out
}

func TestCLIBooks(t *testing.T) {
	isolateCLI(t)

	out := mustRun(t, "", "books")
	assert.Contains(t, out, "pride-and-prejudice")
	assert.Contains(t, out, "Meditations")
	assert.Contains(t, out, "pdf")
	assert.Contains(t, out, "audio")
}

func TestCLIAccountFlow(t *testing.T) {
	isolateCLI(t)

	assert.Contains(t, mustRun(t, "", "whoami"), "Not signed in")

	_, err := runCLI("", "buy", "alice-in-wonderland")
	assert.ErrorContains(t, err, "sign in first")

	assert.Contains(t, mustRun(t, "secret\n", "register", "--email", "ann@example.com", "--name", "Ann"), "Welcome, Ann")
	assert.Contains(t, mustRun(t, "", "whoami"), "Ann <ann@example.com>")

	assert.Contains(t, mustRun(t, "", "buy", "alice-in-wonderland"), "Owned")
	assert.Contains(t, mustRun(t, "", "books"), "Owned")

	mustRun(t, "", "logout")
	assert.Contains(t, mustRun(t, "", "whoami"), "Not signed in")

	_, err = runCLI("wrong\n", "login", "--email", "ann@example.com")
	assert.Error(t, err)
	assert.Contains(t, mustRun(t, "secret", "login", "--email", "ann@example.com"), "Signed in as ann@example.com")

	_, err = runCLI("other\n", "register", "--email", "ANN@example.com")
	assert.Error(t, err)
}

func TestCLIDownloadAndLibrary(t *testing.T) {
	isolateCLI(t)

	assert.Contains(t, mustRun(t, "", "download"), "Saved 2 of 3 books")

	out := mustRun(t, "", "library")
	assert.Contains(t, out, "alice-in-wonderland")
	assert.Contains(t, out, "pride-and-prejudice")

	mustRun(t, "", "library", "rm", "alice-in-wonderland")
	out = mustRun(t, "", "library")
	assert.NotContains(t, out, "alice-in-wonderland")
	assert.Contains(t, out, "pride-and-prejudice")

	_, err := runCLI("", "library", "rm")
	assert.Error(t, err)
}

func TestCLIImport(t *testing.T) {
	dir := isolateCLI(t)
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("First  paragraph.\n\nSecond\nparagraph."), 0644))

	out := mustRun(t, "", "import", "--id", "meditations", file)
	assert.Contains(t, out, "Imported 2 paragraphs as meditations")
	assert.Contains(t, mustRun(t, "", "library"), "meditations")

	_, err := runCLI("", "import", "--id", "x", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	_, err = runCLI("", "import", file)
	assert.Error(t, err, "--id is required")
}

func TestCLIPrefs(t *testing.T) {
	isolateCLI(t)

	out := mustRun(t, "", "prefs")
	assert.Contains(t, out, "theme: dark")
	assert.Contains(t, out, "currency: USD")

	mustRun(t, "", "prefs", "set", "currency", "eur")
	mustRun(t, "", "prefs", "set", "lang", "es")
	out = mustRun(t, "", "prefs")
	assert.Contains(t, out, "currency: EUR")
	assert.Contains(t, out, "language: es")

	_, err := runCLI("", "prefs", "set", "theme", "neon")
	assert.Error(t, err)
	_, err = runCLI("", "prefs", "set", "theme")
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	got, err := readLine(strings.NewReader("hunter2\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	got, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readLine(strings.NewReader(""))
	assert.Error(t, err)
}
