// Package testsupport builds throwaway stores and loggers for tests.
package testsupport

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/persistence/sqlite"
)

var dbSeq atomic.Int64

// NewSQLiteStore opens a private in-memory database that lives for the test.
func NewSQLiteStore(t testing.TB) *sqlite.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:tracker-test-%d?mode=memory&cache=shared", dbSeq.Add(1))
	store, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Logger returns a logger that writes through t.Log.
func Logger(t testing.TB) *log.Logger {
	return log.New(testWriter{t}, "", 0)
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
