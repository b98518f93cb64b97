package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitLog struct {
	mu    sync.Mutex
	texts []string
}

func (l *emitLog) emit(s string) {
	l.mu.Lock()
	l.texts = append(l.texts, s)
	l.mu.Unlock()
}

func (l *emitLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.texts...)
}

func TestRotatorWrapsAround(t *testing.T) {
	var log emitLog
	r := StartRotator(2*time.Millisecond, []string{"a", "b", "c"}, log.emit)

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 5 }, time.Second, time.Millisecond)
	r.Stop()

	got := log.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, got[:5])
}

func TestRotatorStopIsFinal(t *testing.T) {
	var log emitLog
	r := StartRotator(time.Millisecond, []string{"x", "y"}, log.emit)
	time.Sleep(5 * time.Millisecond)

	r.Stop()
	n := len(log.snapshot())
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, n, len(log.snapshot()))
	assert.NotPanics(t, r.Stop)
}

func TestRotatorEmitsFirstTextImmediately(t *testing.T) {
	var log emitLog
	r := StartRotator(time.Hour, []string{"first", "second"}, log.emit)
	defer r.Stop()

	assert.Equal(t, []string{"first"}, log.snapshot())
}

func TestRotatorWithoutTexts(t *testing.T) {
	var log emitLog
	r := StartRotator(time.Millisecond, nil, log.emit)
	r.Stop()

	assert.Empty(t, log.snapshot())
}
