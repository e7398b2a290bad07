package mdbanner

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestResolvePoolSize(t *testing.T) {
	t.Parallel()

	gomaxprocs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{name: "explicit takes priority", workers: 4, want: 4},
		{name: "explicit=1 for sequential", workers: 1, want: 1},
		{name: "explicit can exceed max", workers: 16, want: 16},
		{name: "zero uses auto calculation", workers: 0, want: min(max(gomaxprocs/cpuDivisor, MinPoolSize), MaxPoolSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ResolvePoolSize(tt.workers); got != tt.want {
				t.Errorf("ResolvePoolSize(%d) = %d, want %d", tt.workers, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestExporterPool - lazy creation, reuse, close
// ---------------------------------------------------------------------------

func newFakePool(n int) (*ExporterPool, *[]*fakeExporter) {
	var mu sync.Mutex
	var made []*fakeExporter
	pool := newExporterPool(n, func() PDFExporter {
		mu.Lock()
		defer mu.Unlock()
		x := &fakeExporter{}
		made = append(made, x)
		return x
	})
	return pool, &made
}

func TestExporterPool_AcquireRelease(t *testing.T) {
	t.Parallel()

	pool, made := newFakePool(2)
	defer pool.Close()

	x1 := pool.Acquire()
	x2 := pool.Acquire()
	if x1 == x2 {
		t.Error("expected different exporter instances")
	}

	pool.Release(x1)
	if x3 := pool.Acquire(); x3 != x1 {
		t.Error("expected to get back released exporter")
	}
	if len(*made) != 2 {
		t.Errorf("created %d exporters, want 2", len(*made))
	}
}

func TestExporterPool_Size(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
		want int
	}{
		{"size 1", 1, 1},
		{"size 4", 4, 4},
		{"size 0 becomes 1", 0, 1},
		{"negative becomes 1", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool, _ := newFakePool(tt.size)
			defer pool.Close()

			if got := pool.Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExporterPool_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	pool, made := newFakePool(4)
	defer pool.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x := pool.Acquire()
			time.Sleep(5 * time.Millisecond)
			pool.Release(x)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent access test timed out - possible deadlock")
	}
	if len(*made) > 4 {
		t.Errorf("created %d exporters, want at most 4", len(*made))
	}
}

func TestExporterPool_Close(t *testing.T) {
	t.Parallel()

	pool, made := newFakePool(2)

	x := pool.Acquire()
	(*made)[0].closeErr = errors.New("browser gone")

	if err := pool.Close(); err == nil {
		t.Error("Close() error = nil, want the exporter's close error")
	}
	if !(*made)[0].closed {
		t.Error("exporter not closed")
	}

	// Release after close is a no-op; a second Close does nothing.
	pool.Release(x)
	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
