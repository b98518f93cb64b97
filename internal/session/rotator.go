package session

import (
	"sync"
	"time"
)

// ProgressMessages are cycled while a query is awaiting its answer.
var ProgressMessages = []string{
	"Reading through your documents...",
	"Looking for the most relevant passages...",
	"Cross-checking the sources...",
	"Connecting the dots...",
	"Weighing the evidence...",
	"Drafting an answer...",
	"Checking citations...",
	"Almost there...",
}

// Rotator emits flavor texts on a fixed interval, wrapping at the end of
// the list, until stopped.
type Rotator struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartRotator emits texts[0] synchronously, then the following texts from a
// goroutine every interval.
func StartRotator(interval time.Duration, texts []string, emit func(string)) *Rotator {
	r := &Rotator{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if len(texts) == 0 || interval <= 0 {
		close(r.done)
		return r
	}

	emit(texts[0])

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				// A tick racing with Stop must not emit.
				select {
				case <-r.stop:
					return
				default:
				}
				i = (i + 1) % len(texts)
				emit(texts[i])
			}
		}
	}()

	return r
}

// Stop is idempotent and returns once no further emit can happen.
func (r *Rotator) Stop() {
	r.once.Do(func() {
		close(r.stop)
	})
	<-r.done
}
