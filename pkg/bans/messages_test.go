package bans

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhost/quarry/pkg/observability"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	return NewCatalog(logger)
}

func TestCatalogRender_Defaults(t *testing.T) {
	catalog := testCatalog(t)

	t.Run("permanent global ban", func(t *testing.T) {
		msg := catalog.Render(&BanError{Type: BanTypeGlobal})
		assert.Contains(t, msg, "banned from the platform")
		assert.Contains(t, msg, "This ban is permanent.")
	})

	t.Run("temporary resource ban names the expiry", func(t *testing.T) {
		expires := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		msg := catalog.Render(&BanError{Type: BanTypeResource, ExpiresAt: &expires})
		assert.Contains(t, msg, "resource operations")
		assert.Contains(t, msg, "The ban lifts at")
		assert.Contains(t, msg, "01 Oct 2026")
	})

	t.Run("forum ban", func(t *testing.T) {
		msg := catalog.Render(&BanError{Type: BanTypeForum})
		assert.Contains(t, msg, "social interaction")
	})

	t.Run("unknown type falls back", func(t *testing.T) {
		msg := catalog.Render(&BanError{Type: "mystery"})
		assert.Contains(t, msg, "Your account has been banned.")
	})
}

func TestCatalogLoadFile(t *testing.T) {
	t.Run("overrides only non-empty fields", func(t *testing.T) {
		catalog := testCatalog(t)

		path := filepath.Join(t.TempDir(), "messages.yaml")
		require.NoError(t, os.WriteFile(path, []byte("global: Account suspended.\npermanent: \" No end date.\"\n"), 0o644))

		require.NoError(t, catalog.LoadFile(path))

		msg := catalog.Render(&BanError{Type: BanTypeGlobal})
		assert.Equal(t, "Account suspended. No end date.", msg)

		// Untouched fields keep their defaults
		msg = catalog.Render(&BanError{Type: BanTypeForum})
		assert.Contains(t, msg, "social interaction")
	})

	t.Run("missing file errors", func(t *testing.T) {
		catalog := testCatalog(t)
		assert.Error(t, catalog.LoadFile("/nonexistent/messages.yaml"))
	})

	t.Run("malformed yaml errors and keeps previous set", func(t *testing.T) {
		catalog := testCatalog(t)

		path := filepath.Join(t.TempDir(), "messages.yaml")
		require.NoError(t, os.WriteFile(path, []byte("global: [unclosed"), 0o644))

		assert.Error(t, catalog.LoadFile(path))
		msg := catalog.Render(&BanError{Type: BanTypeGlobal})
		assert.Contains(t, msg, "banned from the platform")
	})
}

func TestCatalogWatch_ReloadsOnChange(t *testing.T) {
	catalog := testCatalog(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("global: First wording.\n"), 0o644))
	require.NoError(t, catalog.LoadFile(path))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- catalog.Watch(stop)
	}()

	// Give the watcher time to register before rewriting the file
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("global: Second wording.\n"), 0o644))

	require.Eventually(t, func() bool {
		msg := catalog.Render(&BanError{Type: BanTypeGlobal})
		return msg == "Second wording. This ban is permanent."
	}, 5*time.Second, 50*time.Millisecond)

	close(stop)
	require.NoError(t, <-done)
}

func TestCatalogWatch_RequiresLoadedFile(t *testing.T) {
	catalog := testCatalog(t)
	stop := make(chan struct{})
	defer close(stop)

	assert.Error(t, catalog.Watch(stop))
}

// Watch holds its caller until stop is closed, so startup code must run
// it on its own goroutine rather than inline.
func TestCatalogWatch_BlocksUntilStopped(t *testing.T) {
	catalog := testCatalog(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("global: Wording.\n"), 0o644))
	require.NoError(t, catalog.LoadFile(path))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- catalog.Watch(stop)
	}()

	select {
	case err := <-done:
		t.Fatalf("Watch returned before stop was closed: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(stop)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after stop was closed")
	}
}
