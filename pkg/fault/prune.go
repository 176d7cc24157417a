package fault

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Prune resolves the program counters of a panicking stack and keeps only the frames from the
// failure site down to the frame that was entered from the harness.
//
// Leading frames that belong to the harness (the runtime, the panic machinery, the checks of
// the contract package) are skipped. Collection stops after the frame of the entry function,
// or before the first harness frame if the entry function is not on the stack.
func Prune(pcs []uintptr, entry string, harness []string) []Frame {
	if len(pcs) == 0 {
		return nil
	}

	var pruned []Frame
	started := false
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		inHarness := isHarness(frame.Function, harness)

		if !started && !inHarness {
			started = true
		}
		if started {
			if inHarness {
				break
			}
			pruned = append(pruned, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
			if entry != "" && frame.Function == entry {
				break
			}
		}
		if !more {
			break
		}
	}
	return pruned
}

func isHarness(function string, harness []string) bool {
	for _, prefix := range harness {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackOf returns the stack carried by err, if any.
func stackOf(err error) []uintptr {
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			trace := st.StackTrace()
			pcs := make([]uintptr, len(trace))
			for i, frame := range trace {
				pcs[i] = uintptr(frame)
			}
			return pcs
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}

func callers(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	for n == len(pcs) {
		pcs = make([]uintptr, 2*len(pcs))
		n = runtime.Callers(skip, pcs)
	}
	return pcs[:n]
}
