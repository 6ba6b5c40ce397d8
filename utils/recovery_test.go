package utils

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSafeGoRecoversPanic(t *testing.T) {
	out := &syncBuffer{}
	logger := NewLoggerTo(out)

	done := make(chan struct{})
	SafeGo(logger, "turn c1", func() {
		defer close(done)
		panic("nil map")
	})
	<-done

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "panic recovered")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `task="turn c1"`)
}

func TestSafeGoWithErrorReportsError(t *testing.T) {
	logger := NewLoggerTo(nil)
	got := make(chan error, 1)

	SafeGoWithError(logger, "server", func() error {
		return errors.New("address in use")
	}, func(err error) { got <- err })

	assert.EqualError(t, <-got, "address in use")
}
