package resource

import (
	"io"
	"time"
)

// Metrics provides observability for resource operations.
//
// This is optional - resources without a runtime, or with a nil Metrics,
// use a no-op implementation.
type Metrics interface {
	// ObserveOperation records one operation with its duration and outcome.
	ObserveOperation(scheme, operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved in direction "read" or "write".
	RecordBytes(scheme, direction string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(scheme, operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(scheme, direction string, bytes int64)                            {}

// observe times fn and reports it.
func (r *Resource) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.runtime.metrics().ObserveOperation(r.Scheme(), operation, time.Since(start), err)
	return err
}

// metricsReadCloser counts bytes read and reports them on Close.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   Metrics
	scheme    string
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.scheme, "read", m.bytesRead)
		m.bytesRead = 0
	}
	return err
}

// metricsWriteCloser counts bytes written and reports them on Close.
type metricsWriteCloser struct {
	io.WriteCloser
	metrics      Metrics
	scheme       string
	bytesWritten int64
}

func (m *metricsWriteCloser) Write(p []byte) (int, error) {
	n, err := m.WriteCloser.Write(p)
	m.bytesWritten += int64(n)
	return n, err
}

func (m *metricsWriteCloser) Close() error {
	err := m.WriteCloser.Close()
	if m.bytesWritten > 0 {
		m.metrics.RecordBytes(m.scheme, "write", m.bytesWritten)
		m.bytesWritten = 0
	}
	return err
}
