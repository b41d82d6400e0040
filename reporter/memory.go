package reporter

import (
	"context"
	"sync"

	"github.com/imattdu/xtrace/reportx"
)

// MemoryReporter keeps reports in memory, for tests and in-process
// indexing.
type MemoryReporter struct {
	mu      sync.Mutex
	reports []string
}

func NewMemory() *MemoryReporter { return &MemoryReporter{} }

func (m *MemoryReporter) Send(_ context.Context, report string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
}

func (m *MemoryReporter) Close() error { return nil }

// Texts returns a copy of the raw reports in arrival order.
func (m *MemoryReporter) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reports))
	copy(out, m.reports)
	return out
}

// Reports parses the stored reports, skipping any that do not parse.
func (m *MemoryReporter) Reports() []*reportx.Report {
	texts := m.Texts()
	out := make([]*reportx.Report, 0, len(texts))
	for _, s := range texts {
		if r, err := reportx.Parse(s); err == nil {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryReporter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

func (m *MemoryReporter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = nil
}

// NullReporter discards everything.
type NullReporter struct{}

func (NullReporter) Send(context.Context, string) {}

func (NullReporter) Close() error { return nil }
