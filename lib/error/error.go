/*package error contains simple functions for reporting errors which end an nbx
run.
*/
package error

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// exit is replaced in tests.
var exit = os.Exit

// External logs an error and exits. It should be used when an error is
// something a user could reasonably be expected to fix through changes in
// configuration, data, or environment.
func External(log *slog.Logger, format string, a ...any) {
	log.Error("nbx exited early.", "err", fmt.Sprintf(format, a...))
	exit(1)
}

// Internal logs an error along with a stack trace and exits. It should be
// used when the error requires a code dive to fix.
func Internal(log *slog.Logger, format string, a ...any) {
	log.Error("nbx exited early because of an internal error.",
		"err", fmt.Sprintf(format, a...), "stack", string(debug.Stack()))
	exit(1)
}

// Check exits through Internal if err matches any of the internal sentinels
// and through External otherwise. It does nothing if err is nil.
func Check(log *slog.Logger, err error, internal ...error) {
	if err == nil {
		return
	}
	for _, target := range internal {
		if errors.Is(err, target) {
			Internal(log, "%s", err.Error())
			return
		}
	}
	External(log, "%s", err.Error())
}
