package common

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	SafeGo(arbor.NewLogger(), "worker", func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	// A panic that escaped SafeGo would kill the whole test binary.
	for _, logger := range []arbor.ILogger{arbor.NewLogger(), nil} {
		done := make(chan struct{})
		SafeGo(logger, "exploding", func() {
			defer close(done)
			panic("simulated task crash")
		})

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("goroutine never ran")
		}
	}
}
