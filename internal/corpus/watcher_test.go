package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesChanges(t *testing.T) {
	root := t.TempDir()
	loader, err := NewLoader(root, []string{"**/*.md"})
	require.NoError(t, err)

	var calls atomic.Int32
	w := NewWatcher(loader, 100*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, root, "a.md", "# A\n")
	writeFile(t, root, "b.md", "# B\n")
	writeFile(t, root, "a.md", "# A\nmore\n")

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	writeFile(t, root, "ignored.png", "x")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// New directories are picked up once created.
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "sub/new.md", "# New\n")
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	loader, err := NewLoader(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWatcher(loader, 0, func(context.Context) {}).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
