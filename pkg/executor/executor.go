// Package executor runs tests against the SUT and reports the coverage they achieve.
//
// [Local] runs tests in-process under a per-execution timeout guard; [Remote] forwards them
// to a worker server. Both satisfy [Executor] with an identical contract.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	"github.com/DominicWuest/seqgen/pkg/testcase"
)

// ErrInfrastructure is matched by errors that stem from the execution infrastructure rather
// than from the SUT, e.g. unknown classes, unreachable workers or undecodable payloads.
var ErrInfrastructure = errors.New("infrastructure failure")

// AllDimensions lists the dimensions collected by the executors.
var AllDimensions = []string{coverage.BranchKey, coverage.MethodsKey, coverage.FaultsKey}

// Aux holds the auxiliary data requests accompanying a test.
type Aux struct {
	Dimensions []string      // Dimensions to report; all if empty
	Budget     time.Duration // Wall clock budget of the execution; the executor's default if zero
}

func (a Aux) wants(key string) bool {
	if len(a.Dimensions) == 0 {
		return true
	}
	for _, d := range a.Dimensions {
		if d == key {
			return true
		}
	}
	return false
}

// An Executor executes a test against the instrumented SUT.
type Executor interface {
	Execute(ctx context.Context, t *testcase.Test, aux Aux) (coverage.Set, error)
}

// ExecutorFunc adapts a function to an Executor.
type ExecutorFunc func(ctx context.Context, t *testcase.Test, aux Aux) (coverage.Set, error)

func (f ExecutorFunc) Execute(ctx context.Context, t *testcase.Test, aux Aux) (coverage.Set, error) {
	return f(ctx, t, aux)
}

// Request is the payload of an execution request sent to a worker.
type Request struct {
	Test       *testcase.Test `json:"test"`
	Dimensions []string       `json:"dimensions,omitempty"`
	BudgetMs   int64          `json:"budgetMs,omitempty"`
}

// Aux returns the auxiliary data requests of the request.
func (r Request) Aux() Aux {
	return Aux{
		Dimensions: r.Dimensions,
		Budget:     time.Duration(r.BudgetMs) * time.Millisecond,
	}
}

// Status is reported by a worker.
type Status struct {
	Executions int64 `json:"executions"`
	Running    int64 `json:"running"`
	Faults     int   `json:"faults"`
}
