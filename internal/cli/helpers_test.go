package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for a command goroutine and a test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeConfig writes a config using the in-memory transport and databases
// under a temp dir, plus any extra YAML.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	yaml := "transport:\n  kind: memory\n" +
		"storage:\n" +
		"  session_db: " + filepath.Join(dir, "session.db") + "\n" +
		"  document_db: " + filepath.Join(dir, "answers.db") + "\n" +
		extra
	path := filepath.Join(dir, "peersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

// execute runs the root command to completion.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// runUntil runs a long-lived command until its output contains every string
// in until, then cancels it and returns everything it printed.
func runUntil(t *testing.T, stdin string, until []string, args ...string) string {
	t.Helper()
	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		got := out.String()
		for _, u := range until {
			if !strings.Contains(got, u) {
				return false
			}
		}
		return true
	},
		5*time.Second, 5*time.Millisecond, "output so far:\n%s", out.String())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop")
	}
	return out.String()
}
