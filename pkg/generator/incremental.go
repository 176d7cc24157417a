package generator

import (
	"context"

	"github.com/DominicWuest/seqgen/pkg/testcase"
	"github.com/sirupsen/logrus"
)

// Incremental generates one operation at a time and submits the tests its splitter cuts.
type Incremental struct {
	Builder  *Builder
	Splitter *Splitter

	Log *logrus.Entry
}

// Generate feeds operations into the splitter until ctx is done, then flushes it. It returns
// the number of submitted tests. Reaching the deadline of ctx is not an error.
func (g *Incremental) Generate(ctx context.Context, sub Submitter) (int, error) {
	if g.Log == nil {
		g.Log = mutedLog()
	}

	submitted := 0
	submit := func(ctx context.Context, tests []*testcase.Test) error {
		for _, t := range tests {
			if err := sub.Submit(ctx, t); err != nil {
				return err
			}
			submitted++
		}
		return nil
	}

	for ctx.Err() == nil {
		var tests []*testcase.Test
		if g.Splitter.Full() {
			tests = g.Splitter.Flush()
		}
		// The builder's view of the repository must match the splitter's prefix
		if g.Splitter.Len() == 0 {
			g.Builder.Reset()
		}
		tests = append(tests, g.Splitter.Add(g.Builder.Next())...)

		if err := submit(ctx, tests); err != nil {
			if ctx.Err() != nil {
				break
			}
			return submitted, err
		}
	}

	// The pending prefix is submitted even though the deadline passed
	if err := submit(context.WithoutCancel(ctx), g.Splitter.Flush()); err != nil {
		return submitted, err
	}

	g.Log.Debugf("Incremental generation submitted %d tests", submitted)
	return submitted, nil
}
