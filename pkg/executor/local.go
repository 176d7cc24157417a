package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/fault"
	"github.com/DominicWuest/seqgen/pkg/guard"
	"github.com/DominicWuest/seqgen/pkg/sut"
	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBudget = time.Second
	DefaultGrace  = 100 * time.Millisecond
)

// Local executes tests in-process. Every execution runs on its own goroutine, controlled by
// its own guard.
type Local struct {
	Registry   *sut.Registry
	Classifier *fault.Classifier

	Budget time.Duration // Budget of executions which don't request one
	Grace  time.Duration // How long a stopped execution may take to reach a safe point before it is abandoned

	Log *logrus.Entry
}

// NewLocal creates a local executor for the passed registry. A nil classifier is replaced by
// one using the default nil policy.
func NewLocal(registry *sut.Registry, classifier *fault.Classifier, budget, grace time.Duration, log *logrus.Entry) *Local {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	if classifier == nil {
		classifier = fault.NewClassifier(nil, log)
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	if grace <= 0 {
		grace = DefaultGrace
	}

	// The executor and the SUT model are part of the harness
	c := *classifier
	c.Harness = append(append([]string(nil), classifier.Harness...),
		reflect.TypeFor[Local]().PkgPath()+".",
		reflect.TypeFor[sut.Env]().PkgPath()+".",
	)

	return &Local{
		Registry:   registry,
		Classifier: &c,
		Budget:     budget,
		Grace:      grace,
		Log:        log,
	}
}

// Execute runs the test and returns the coverage it achieved. Faults raised by the SUT,
// including timeouts, are reported through the faults dimension and never as errors.
// The returned error is either an infrastructure failure or the cancellation of ctx.
func (l *Local) Execute(ctx context.Context, t *testcase.Test, aux Aux) (coverage.Set, error) {
	steps, err := l.plan(t)
	if err != nil {
		return nil, errors.Join(ErrInfrastructure, err)
	}

	budget := aux.Budget
	if budget <= 0 {
		budget = l.Budget
	}

	g := guard.New()
	defer g.Done()

	r := &run{
		guard:   g,
		budget:  budget,
		env:     sut.NewEnv(g),
		faults:  fault.NewCoverage(),
		methods: coverage.NewLabels(),
		repo:    make(map[testcase.Reference]reflect.Value),
	}

	if err := g.Start(budget); err != nil {
		return nil, errors.Join(ErrInfrastructure, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.run(r, steps)
	}()

	select {
	case <-done:
	case <-g.Expired():
		select {
		case <-done:
		case <-time.After(l.Grace):
			l.Log.Debugf("Test %s did not reach a safe point within %s of its budget, abandoning it", t.Fingerprint().Encoded()[:12], l.Grace)
			r.abandon()
		case <-ctx.Done():
			r.abandon()
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		r.abandon()
		return nil, ctx.Err()
	}

	// The deferred Done leaves the guard stopped for an abandoned goroutine
	return r.result(aux), nil
}

type step struct {
	op       testcase.Operation
	class    *sut.Class
	method   *sut.Method
	constant reflect.Value
}

// plan resolves the classes, methods and constants of all operations of the test.
func (l *Local) plan(t *testcase.Test) ([]step, error) {
	steps := make([]step, t.Len())
	for i, op := range t.Operations() {
		s := step{op: op}
		var err error
		switch op := op.(type) {
		case testcase.CreateObject:
			s.class, s.method, err = l.resolve(op.Class, op.Constructor, true)
			if err == nil {
				err = checkBinding(s.method, nil, op.Args, op.Result)
			}
		case testcase.Invoke:
			s.class, s.method, err = l.resolve(op.Class, op.Method, false)
			if err == nil {
				err = checkBinding(s.method, op.Receiver, op.Args, op.Result)
			}
		case testcase.AssignConstant:
			s.constant, err = l.constant(op)
		case testcase.ResetRepository:
		default:
			err = fmt.Errorf("unsupported operation %T", op)
		}
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s) - %v", i, op, err)
		}
		steps[i] = s
	}
	return steps, nil
}

func (l *Local) resolve(className, name string, constructor bool) (*sut.Class, *sut.Method, error) {
	class, ok := l.Registry.Class(className)
	if !ok {
		return nil, nil, fmt.Errorf("class %s not found", className)
	}
	var m *sut.Method
	if constructor {
		m, ok = class.Constructor(name)
	} else {
		m, ok = class.Method(name)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%s.%s not found", className, name)
	}
	return class, m, nil
}

func checkBinding(m *sut.Method, receiver *testcase.Reference, args []testcase.Reference, result *testcase.Reference) error {
	if m.Static != (receiver == nil) {
		return fmt.Errorf("receiver of %s does not match its signature", m.Label())
	}
	if receiver != nil && receiver.Type != m.Class().Name {
		return fmt.Errorf("receiver %s of %s has the wrong type", receiver, m.Label())
	}
	params := m.Params()
	if len(params) != len(args) {
		return fmt.Errorf("%s takes %d arguments, got %d", m.Label(), len(params), len(args))
	}
	for i, arg := range args {
		if arg.Type != params[i] {
			return fmt.Errorf("argument %d of %s must be of type %s, got %s", i, m.Label(), params[i], arg.Type)
		}
	}
	if result != nil && result.Type != m.Result() {
		return fmt.Errorf("result of %s can't be bound to %s", m.Label(), result)
	}
	return nil
}

func (l *Local) constant(op testcase.AssignConstant) (reflect.Value, error) {
	typ, ok := l.Registry.Type(op.Result.Type)
	if !ok {
		return reflect.Value{}, fmt.Errorf("type %s not found", op.Result.Type)
	}
	if op.Value == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(op.Value)
	if v.Type() == typ {
		return v, nil
	}
	if !v.CanConvert(typ) {
		return reflect.Value{}, fmt.Errorf("constant %#v can't be assigned to %s", op.Value, op.Result.Type)
	}
	return v.Convert(typ), nil
}

// run executes the steps on the calling goroutine.
func (l *Local) run(r *run, steps []step) {
	for _, s := range steps {
		if r.sealed() {
			return
		}
		if r.guard.Stopped() {
			r.timeout()
			return
		}

		switch op := s.op.(type) {
		case testcase.ResetRepository:
			r.repo = make(map[testcase.Reference]reflect.Value)
		case testcase.AssignConstant:
			r.repo[op.Result] = s.constant
		case testcase.CreateObject:
			if !l.invoke(r, s, reflect.Value{}, op.Args, op.Result) {
				return
			}
		case testcase.Invoke:
			receiver := reflect.Value{}
			if op.Receiver != nil {
				receiver = r.value(*op.Receiver, s.class.Type)
			}
			if !l.invoke(r, s, receiver, op.Args, op.Result) {
				return
			}
		}
	}
}

// invoke calls a constructor or method of the SUT. It returns false if the execution has to
// end.
func (l *Local) invoke(r *run, s step, receiver reflect.Value, refs []testcase.Reference, target *testcase.Reference) bool {
	m := s.method
	types := m.ParamTypes()
	args := make([]reflect.Value, len(refs))
	for i, ref := range refs {
		args[i] = r.value(ref, types[i])
	}

	call := fault.Call{
		Label:     m.Label(),
		Entry:     m.Entry(),
		Contracts: s.class.Contracts,
		Throws:    m.Throws,
		Args:      args,
	}
	if !m.Static {
		call.Args = append([]reflect.Value{receiver}, args...)
	}

	r.begin(m)

	var result reflect.Value
	var returned error
	err := l.Classifier.Intercept(call, r.faults, func() {
		result, returned = m.Call(r.env, receiver, args)
	})
	r.end()

	var invalid *fault.InvalidError
	switch {
	case err == nil:
		r.observe(m, returned)
		if target != nil {
			if returned == nil && result.IsValid() {
				r.repo[*target] = result
			} else {
				delete(r.repo, *target)
			}
		}
	case errors.As(err, &invalid):
		// An ill-formed operation leaves no trace
		r.env.Rollback()
	case errors.Is(err, guard.ErrStopped):
		r.markTimedOut()
		return false
	default:
		if target != nil {
			delete(r.repo, *target)
		}
	}
	return true
}

// run holds the state of a single execution.
type run struct {
	guard  *guard.Guard
	budget time.Duration
	env    *sut.Env
	faults *fault.Coverage

	// Only touched by the executing goroutine
	repo map[testcase.Reference]reflect.Value

	mu        sync.Mutex
	methods   *coverage.Labels
	current   *sut.Method // Nil between operations
	abandoned bool
	timedOut  bool
}

// value returns the bound value of ref, or the zero value of typ if ref is unbound.
func (r *run) value(ref testcase.Reference, typ reflect.Type) reflect.Value {
	if v, ok := r.repo[ref]; ok && v.Type().AssignableTo(typ) {
		return v
	}
	return reflect.Zero(typ)
}

func (r *run) begin(m *sut.Method) {
	r.mu.Lock()
	r.current = m
	r.mu.Unlock()
	r.env.Begin()
}

func (r *run) end() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}

func (r *run) observe(m *sut.Method, returned error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abandoned {
		return
	}
	if returned != nil {
		r.methods.Add(m.Label() + ":error")
	} else {
		r.methods.Add(m.Label())
	}
}

func (r *run) sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandoned || r.timedOut
}

func (r *run) markTimedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timedOut = true
}

// timeout records the timeout of an execution which stopped without the SUT raising it.
func (r *run) timeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeoutLocked()
}

func (r *run) timeoutLocked() {
	if r.timedOut {
		return
	}
	r.timedOut = true

	f := &fault.Fault{
		Kind:    fault.Timeout,
		Message: (&guard.StoppedError{Budget: r.budget}).Error(),
	}
	if r.current == nil {
		f.Message += " between operations"
	} else {
		file, line := r.current.Source()
		f.Trace = []fault.Frame{{Function: r.current.Entry(), File: file, Line: line}}
	}
	r.faults.Add(f)
}

// abandon gives up on the executing goroutine. Nothing it does afterwards is observed.
func (r *run) abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = true
	r.timeoutLocked()
}

func (r *run) result(aux Aux) coverage.Set {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := coverage.NewSet()
	if aux.wants(coverage.BranchKey) {
		set[coverage.BranchKey] = r.env.Probes()
	}
	if aux.wants(coverage.MethodsKey) {
		set[coverage.MethodsKey] = r.methods.Clone()
	}
	if aux.wants(coverage.FaultsKey) {
		set[coverage.FaultsKey] = r.faults.Clone()
	}
	return set
}
