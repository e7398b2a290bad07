package main

import (
	"io"
	"os"
	"time"

	mdbanner "github.com/alnah/go-mdbanner"
)

// Pool abstracts the PDF exporter pool for testability.
type Pool interface {
	Acquire() mdbanner.PDFExporter
	Release(mdbanner.PDFExporter)
	Size() int
	Close() error
}

// Compile-time interface implementation check.
var _ Pool = (*mdbanner.ExporterPool)(nil)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Exporters func(n int, timeout time.Duration, page mdbanner.PageSize) Pool
}

// DefaultEnv returns the production environment: headless Chrome
// exporters via go-rod.
func DefaultEnv() *Environment {
	return &Environment{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Exporters: func(n int, timeout time.Duration, page mdbanner.PageSize) Pool {
			return mdbanner.NewExporterPool(n, timeout, page)
		},
	}
}
