package generator

import (
	"context"
	"io"

	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/sirupsen/logrus"
)

// A Submitter accepts generated tests.
type Submitter interface {
	Submit(ctx context.Context, t *testcase.Test) error
}

// SubmitterFunc adapts a function to a Submitter.
type SubmitterFunc func(ctx context.Context, t *testcase.Test) error

func (f SubmitterFunc) Submit(ctx context.Context, t *testcase.Test) error {
	return f(ctx, t)
}

func mutedLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Batch submits sequences of a fixed length, each built from an empty repository.
type Batch struct {
	Builder *Builder
	Length  int

	Log *logrus.Entry
}

// Generate builds and submits tests until ctx is done. It returns the number of submitted
// tests. Reaching the deadline of ctx is not an error.
func (b *Batch) Generate(ctx context.Context, sub Submitter) (int, error) {
	if b.Log == nil {
		b.Log = mutedLog()
	}

	submitted := 0
	for ctx.Err() == nil {
		b.Builder.Reset()
		ops := make([]testcase.Operation, max(b.Length, 1))
		for i := range ops {
			ops[i] = b.Builder.Next()
		}

		if err := sub.Submit(ctx, testcase.New(ops, b.Builder.Slots())); err != nil {
			if ctx.Err() != nil {
				break
			}
			return submitted, err
		}
		submitted++
	}

	b.Log.Debugf("Batch generation submitted %d tests of length %d", submitted, b.Length)
	return submitted, nil
}
