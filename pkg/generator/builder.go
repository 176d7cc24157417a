// Package generator produces candidate tests.
//
// A [Builder] generates random operations over the classes of a [sut.Registry]. [Batch]
// submits fixed-length sequences of them, [Incremental] feeds them one at a time into a
// [Splitter] which cuts the growing sequence into small self-contained tests. Both submit
// through a [Submitter] until their context is done.
package generator

import (
	"math/rand"
	"sort"

	"github.com/DominicWuest/seqgen/pkg/sut"
	"github.com/DominicWuest/seqgen/pkg/testcase"
)

// Config tunes the random choices of a Builder.
type Config struct {
	CUTSlots int // Reference slots of the class under test
	AuxSlots int // Reference slots of every other type

	NewObjectProbability float64 // Probability of constructing an object rather than invoking a method on a bound one
	ConstantProbability  float64 // Probability of assigning a constant
	ResetProbability     float64 // Probability of resetting the repository
	CUTBias              float64 // Probability of targeting the class under test rather than any class
}

// DefaultConfig returns the config used when none is given.
func DefaultConfig() Config {
	return Config{
		CUTSlots:             3,
		AuxSlots:             2,
		NewObjectProbability: 0.2,
		ConstantProbability:  0.2,
		ResetProbability:     0,
		CUTBias:              0.75,
	}
}

// Builder generates random operations. It remembers which references the operations
// generated since the last reset bind, and prefers them as receivers and arguments.
type Builder struct {
	registry *sut.Registry
	rand     *rand.Rand
	config   Config

	slots     map[string]int
	primitive []string
	bound     map[testcase.Reference]bool
}

// NewBuilder creates a builder drawing from rng.
func NewBuilder(registry *sut.Registry, config Config, rng *rand.Rand) *Builder {
	b := &Builder{
		registry: registry,
		rand:     rng,
		config:   config,
		slots:    make(map[string]int),
		bound:    make(map[testcase.Reference]bool),
	}
	for _, typ := range registry.Types() {
		switch {
		case typ == registry.CUT().Name:
			b.slots[typ] = max(config.CUTSlots, 1)
		default:
			b.slots[typ] = max(config.AuxSlots, 1)
		}
		if registry.IsPrimitive(typ) && len(registry.Constants(typ)) > 0 {
			b.primitive = append(b.primitive, typ)
		}
	}
	return b
}

// Slots returns the number of reference slots per type.
func (b *Builder) Slots() map[string]int {
	slots := make(map[string]int, len(b.slots))
	for typ, n := range b.slots {
		slots[typ] = n
	}
	return slots
}

// Reset forgets all bound references.
func (b *Builder) Reset() {
	clear(b.bound)
}

// Next generates the next operation.
func (b *Builder) Next() testcase.Operation {
	if b.rand.Float64() < b.config.ResetProbability {
		b.Reset()
		return testcase.ResetRepository{}
	}
	if len(b.primitive) > 0 && b.rand.Float64() < b.config.ConstantProbability {
		return b.assignConstant()
	}

	class := b.registry.CUT()
	if b.rand.Float64() >= b.config.CUTBias {
		classes := b.registry.Classes()
		class = classes[b.rand.Intn(len(classes))]
	}

	receivers := b.boundOf(class.Name)
	instance, static := b.methodsOf(class)
	canInvoke := len(static) > 0 || (len(instance) > 0 && len(receivers) > 0)
	canCreate := len(class.Constructors) > 0

	switch {
	case canCreate && (!canInvoke || b.rand.Float64() < b.config.NewObjectProbability):
		return b.createObject(class)
	case canInvoke:
		return b.invoke(class, instance, static, receivers)
	case len(b.primitive) > 0:
		return b.assignConstant()
	}
	return testcase.ResetRepository{}
}

func (b *Builder) methodsOf(class *sut.Class) (instance, static []*sut.Method) {
	for _, m := range class.Methods {
		if m.Static {
			static = append(static, m)
		} else {
			instance = append(instance, m)
		}
	}
	return instance, static
}

func (b *Builder) assignConstant() testcase.Operation {
	typ := b.primitive[b.rand.Intn(len(b.primitive))]
	pool := b.registry.Constants(typ)
	result := b.slot(typ)
	b.bound[result] = true
	return testcase.AssignConstant{Result: result, Value: pool[b.rand.Intn(len(pool))]}
}

func (b *Builder) createObject(class *sut.Class) testcase.Operation {
	ctor := class.Constructors[b.rand.Intn(len(class.Constructors))]
	op := testcase.CreateObject{
		Class:       class.Name,
		Constructor: ctor.Name,
		Args:        b.args(ctor),
	}
	result := b.slot(class.Name)
	op.Result = &result
	b.bound[result] = true
	return op
}

func (b *Builder) invoke(class *sut.Class, instance, static []*sut.Method, receivers []testcase.Reference) testcase.Operation {
	var m *sut.Method
	var receiver *testcase.Reference
	if len(receivers) > 0 && len(instance) > 0 && (len(static) == 0 || b.rand.Intn(len(instance)+len(static)) < len(instance)) {
		m = instance[b.rand.Intn(len(instance))]
		r := receivers[b.rand.Intn(len(receivers))]
		receiver = &r
	} else {
		m = static[b.rand.Intn(len(static))]
	}

	op := testcase.Invoke{
		Receiver: receiver,
		Class:    class.Name,
		Method:   m.Name,
		Args:     b.args(m),
	}
	if m.Result() != "" {
		result := b.slot(m.Result())
		op.Result = &result
		b.bound[result] = true
	}
	return op
}

// args picks a reference per parameter, bound ones if there are any.
func (b *Builder) args(m *sut.Method) []testcase.Reference {
	params := m.Params()
	args := make([]testcase.Reference, len(params))
	for i, typ := range params {
		if bound := b.boundOf(typ); len(bound) > 0 {
			args[i] = bound[b.rand.Intn(len(bound))]
		} else {
			args[i] = b.slot(typ)
		}
	}
	return args
}

func (b *Builder) slot(typ string) testcase.Reference {
	return testcase.Reference{Type: typ, Index: b.rand.Intn(max(b.slots[typ], 1))}
}

// boundOf returns the bound references of a type in a deterministic order.
func (b *Builder) boundOf(typ string) []testcase.Reference {
	var refs []testcase.Reference
	for r := range b.bound {
		if r.Type == typ {
			refs = append(refs, r)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	return refs
}
