package encoder

import (
	"errors"
	"io"
	"sync"
	"time"
)

// chunker slices a byte stream into chunks on a fixed cadence. Data read
// between two ticks becomes one chunk; the remainder is flushed at EOF.
type chunker struct {
	mu      sync.Mutex
	pending []byte
	emitted int
	bytes   int64
}

// run reads r until EOF or error, emitting on each tick. It returns the
// read error, nil on clean EOF.
func (c *chunker) run(r io.Reader, tick <-chan time.Time, emit func([]byte)) error {
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				c.mu.Lock()
				c.pending = append(c.pending, buf[:n]...)
				c.mu.Unlock()
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-tick:
			c.flush(emit)
		case err := <-readErr:
			c.flush(emit)
			return err
		}
	}
}

func (c *chunker) flush(emit func([]byte)) {
	c.mu.Lock()
	data := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(data) == 0 {
		return
	}
	c.emitted++
	c.bytes += int64(len(data))
	emit(data)
}
