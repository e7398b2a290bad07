package mdbanner

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one worker is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// ExporterPool manages PDF exporters for parallel export. Each exporter
// owns its browser. Exporters are created lazily on first acquire.
type ExporterPool struct {
	size      int
	newFn     func() PDFExporter
	exporters []PDFExporter
	sem       chan PDFExporter
	mu        sync.Mutex
	created   int
	closed    bool
}

// NewExporterPool creates a pool with capacity for n headless Chrome
// exporters.
func NewExporterPool(n int, timeout time.Duration, page PageSize) *ExporterPool {
	return newExporterPool(n, func() PDFExporter { return NewPDFExporter(timeout, page) })
}

func newExporterPool(n int, newFn func() PDFExporter) *ExporterPool {
	if n < MinPoolSize {
		n = MinPoolSize
	}
	return &ExporterPool{
		size:      n,
		newFn:     newFn,
		exporters: make([]PDFExporter, 0, n),
		sem:       make(chan PDFExporter, n),
	}
}

// Acquire gets an exporter from the pool, creating one if needed.
// Blocks if all exporters are in use.
func (p *ExporterPool) Acquire() PDFExporter {
	select {
	case x := <-p.sem:
		return x
	default:
	}

	p.mu.Lock()
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		x := p.newFn()

		p.mu.Lock()
		p.exporters = append(p.exporters, x)
		p.mu.Unlock()

		return x
	}
	p.mu.Unlock()

	return <-p.sem
}

// Release returns an exporter to the pool.
// The lock is released before sending to avoid deadlock when channel is full.
func (p *ExporterPool) Release(x PDFExporter) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.sem <- x
}

// Close releases all browser resources.
// Returns an aggregated error if multiple exporters fail to close.
func (p *ExporterPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	exporters := p.exporters
	p.mu.Unlock()

	var errs []error
	for _, x := range exporters {
		if err := x.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *ExporterPool) Size() int {
	return p.size
}

// ResolvePoolSize determines the worker count.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	// GOMAXPROCS is adjusted by automaxprocs in containers
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
