package fault

import (
	"errors"
	"io"
	"reflect"
	"runtime"
	"strings"

	"github.com/DominicWuest/seqgen/pkg/contract"
	"github.com/DominicWuest/seqgen/pkg/guard"
	"github.com/sirupsen/logrus"
)

// A Call describes the SUT invocation whose panics are being classified.
type Call struct {
	Label     string         // Human readable name of the invoked method, e.g. "Account.Withdraw"
	Entry     string         // Fully qualified name of the function entered from the harness
	Contracts bool           // Whether the invoked class carries executable contracts
	Throws    []error        // Panics the method declares it may raise
	Args      []reflect.Value // Receiver first, if any
}

// Classifier classifies panics against the contract taxonomy and records faults.
type Classifier struct {
	NilPolicy NilPolicy
	Harness   []string // Function name prefixes that belong to the harness rather than the SUT

	Log *logrus.Entry
}

// DefaultHarness lists the function name prefixes which never belong to the SUT.
func DefaultHarness() []string {
	return []string{
		"runtime.",
		"reflect.",
		packageOf(Classifier{}) + ".",
		packageOf(contract.Violation{}) + ".",
		packageOf(guard.StoppedError{}) + ".",
	}
}

func packageOf(v any) string {
	return reflect.TypeOf(v).PkgPath()
}

// NewClassifier returns a classifier using the passed nil policy and the default harness.
func NewClassifier(policy NilPolicy, log *logrus.Entry) *Classifier {
	if policy == nil {
		policy = NilArgs
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Classifier{
		NilPolicy: policy,
		Harness:   DefaultHarness(),
		Log:       log,
	}
}

// Intercept runs fn and classifies any panic it raises, recording faults in dim.
// The panic is never swallowed: it is returned as an error, either unchanged, or as an
// *InvalidError for ill-formed candidates, or as an *Error for faults.
func (c *Classifier) Intercept(call Call, dim *Coverage, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.Classify(call, dim, r, callers(3))
		}
	}()
	fn()
	return nil
}

// Classify classifies a recovered panic value. stack holds the program counters of the
// panicking goroutine and is used unless the panic value carries its own stack.
// The first matching rule wins.
func (c *Classifier) Classify(call Call, dim *Coverage, recovered any, stack []uintptr) error {
	// Already classified by a nested interception
	if classified, ok := recovered.(*Error); ok {
		return classified
	}

	err, ok := recovered.(error)
	if !ok {
		err = &PanicError{Value: recovered}
	}

	if errors.Is(err, guard.ErrStopped) {
		return c.record(call, dim, err, stack, Timeout, false)
	}

	var violation *contract.Violation
	isViolation := errors.As(err, &violation)

	if isViolation && violation.Kind == contract.PreconditionViolation && violation.Function == call.Entry {
		c.Log.Tracef("Precondition of %s violated at entry, discarding operation", call.Label)
		return &InvalidError{Err: err}
	}

	if call.Contracts {
		if !isViolation {
			// The SUT may throw whatever it did not forbid through its contracts
			return err
		}
		switch violation.Kind {
		case contract.PreconditionViolation:
			return c.record(call, dim, err, stack, InternalPrecondition, false)
		case contract.PostconditionViolation:
			return c.record(call, dim, err, stack, Postcondition, false)
		case contract.InvariantViolation:
			return c.record(call, dim, err, stack, Invariant, false)
		default:
			return c.record(call, dim, err, stack, Assertion, false)
		}
	}

	for _, declared := range call.Throws {
		if errors.Is(err, declared) {
			return err
		}
	}

	if isNilDereference(err) {
		switch c.NilPolicy.Judge(call, err) {
		case CallerError:
			c.Log.Tracef("Nil dereference in %s attributed to a nil argument", call.Label)
			return err
		case Ambiguous:
			return c.record(call, dim, err, stack, UnexpectedException, true)
		}
	}

	return c.record(call, dim, err, stack, UnexpectedException, false)
}

func (c *Classifier) record(call Call, dim *Coverage, err error, stack []uintptr, kind Kind, ambiguous bool) error {
	if carried := stackOf(err); carried != nil {
		stack = carried
	}
	f := &Fault{
		Kind:      kind,
		Message:   err.Error(),
		Trace:     Prune(stack, call.Entry, c.Harness),
		Ambiguous: ambiguous,
	}
	if dim != nil {
		if dim.Add(f) {
			c.Log.Debugf("New %s fault in %s: %s", kind, call.Label, f.Message)
		}
	}
	return &Error{Fault: f, Err: err}
}

func isNilDereference(err error) bool {
	var re runtime.Error
	if !errors.As(err, &re) {
		return false
	}
	msg := re.Error()
	return strings.Contains(msg, "nil pointer dereference") || strings.Contains(msg, "nil map")
}
