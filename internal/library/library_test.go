package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "scripts"))
	require.NoError(t, err)
	return l
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"login", "login.script", false},
		{"login.script", "login.script", false},
		{"", "", true},
		{"../etc/passwd", "", true},
		{"a/b", "", true},
		{`a\b`, "", true},
		{"a..b", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveGetDelete(t *testing.T) {
	l := newLibrary(t)

	name, err := l.Save("login", "click [text:\"OK\"]\n")
	require.NoError(t, err)
	assert.Equal(t, "login.script", name)

	content, err := l.Get("login.script")
	require.NoError(t, err)
	assert.Equal(t, "click [text:\"OK\"]\n", content)

	_, err = l.Save("login", "back\n")
	require.NoError(t, err)
	content, err = l.Get("login")
	require.NoError(t, err)
	assert.Equal(t, "back\n", content, "save overwrites")

	require.NoError(t, l.Delete("login"))
	_, err = l.Get("login")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.Delete("login"), ErrNotFound)
}

func TestRejectsTraversal(t *testing.T) {
	l := newLibrary(t)
	_, err := l.Save("../escape", "x")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = l.Get("..")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, l.Delete("sub/file"), ErrInvalidName)
}

func TestListNewestFirst(t *testing.T) {
	l := newLibrary(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "middle", "new"} {
		_, err := l.Save(name, "log "+name)
		require.NoError(t, err)
		path, _ := l.Path(name)
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(l.Dir(), "dir.script"), 0o755))

	scripts, err := l.List()
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "new.script", scripts[0].Name)
	assert.Equal(t, "old.script", scripts[2].Name)
	assert.Equal(t, int64(len("log new")), scripts[0].Size)
	assert.True(t, scripts[0].Modified.Equal(base.Add(2*time.Minute)))
}

func TestListEmpty(t *testing.T) {
	scripts, err := newLibrary(t).List()
	require.NoError(t, err)
	assert.NotNil(t, scripts)
	assert.Empty(t, scripts)
}

func TestWatchReportsChanges(t *testing.T) {
	l := newLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var changes []Change
	done := make(chan error, 1)
	go func() {
		done <- l.Watch(ctx, 20*time.Millisecond, nil, func(c Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		})
	}()
	last := func() (Change, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(changes) == 0 {
			return Change{}, 0
		}
		return changes[len(changes)-1], len(changes)
	}

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	_, err := l.Save("flow", "home")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c, n := last()
		return n > 0 && c == Change{Name: "flow.script", Kind: ChangeSaved}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Delete("flow"))
	require.Eventually(t, func() bool {
		c, _ := last()
		return c == Change{Name: "flow.script", Kind: ChangeRemoved}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
