package transfer

import (
	"io"
	"sync"
)

// CountingReader passes reads through and reports each chunk's length to sent.
// Stores wrap the body they hand to the HTTP transport with it.
type CountingReader struct {
	r    io.Reader
	sent SentFunc
}

func NewCountingReader(r io.Reader, sent SentFunc) *CountingReader {
	return &CountingReader{r: r, sent: sent}
}

func (c *CountingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 && c.sent != nil {
		c.sent(int64(n))
	}
	return n, err
}

// progressMeter turns sent byte counts into whole-percent progress steps.
type progressMeter struct {
	mu      sync.Mutex
	total   int64
	sent    int64
	percent int
	closed  bool
	emit    func(float64)
}

func newProgressMeter(total int64, emit func(float64)) *progressMeter {
	return &progressMeter{total: total, emit: emit}
}

func (m *progressMeter) add(n int64) {
	if n <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.sent += n
	fraction := float64(m.sent) / float64(m.total)
	if fraction > 1 {
		fraction = 1
	}
	if percent := int(fraction * 100); percent > m.percent {
		m.percent = percent
		m.emit(fraction)
	}
}

// close drops any count arriving after the store returned. HTTP transports may
// still be draining a request body at that point.
func (m *progressMeter) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
