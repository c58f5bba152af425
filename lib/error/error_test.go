package error

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	errInternal := errors.New("broken invariant")

	tests := []struct {
		err   error
		code  int
		stack bool
	}{
		{nil, -1, false},
		{errors.New("bad config"), 1, false},
		{fmt.Errorf("step 3: %w", errInternal), 1, true},
	}

	saved := exit
	defer func() { exit = saved }()
	for i := range tests {
		code := -1
		exit = func(c int) { code = c }
		buf := &bytes.Buffer{}
		log := slog.New(slog.NewTextHandler(buf, nil))

		Check(log, tests[i].err, errInternal)
		if code != tests[i].code {
			t.Errorf("%d) Expected exit code %d, got %d.",
				i, tests[i].code, code)
		}
		if stack := strings.Contains(buf.String(), "stack="); stack != tests[i].stack {
			t.Errorf("%d) Expected stack = %v, got log %q.",
				i, tests[i].stack, buf.String())
		}
	}
}
