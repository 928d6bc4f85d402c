package common

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn on a new goroutine and turns a panic into an error log
// instead of a process crash. Crawl tasks execute whatever the visited
// page does through CDP; a panic in one task must not abort the run.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := GetStackTrace()
				if logger != nil {
					logger.Error().
						Str("goroutine", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", stack).
						Msg("Recovered from panic in goroutine")
				} else {
					fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, stack)
				}
			}
		}()

		fn()
	}()
}
