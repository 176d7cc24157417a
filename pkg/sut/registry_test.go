package sut

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DominicWuest/seqgen/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEmpty = errors.New("empty")

type counter struct {
	n int
}

func newCounter() *counter              { return &counter{} }
func newCounterFrom(n int) *counter     { return &counter{n: n} }
func (c *counter) Inc(env *Env, by int) { env.Hit(1); c.n += by }
func (c *counter) Value() int           { return c.n }
func (c *counter) Pop() (int, error) {
	if c.n == 0 {
		return 0, errEmpty
	}
	c.n--
	return c.n, nil
}
func (c *counter) Add(other *counter) *counter { return &counter{n: c.n + other.n} }

func counterClass() *Class {
	return &Class{
		Name: "Counter",
		Type: reflect.TypeFor[*counter](),
		Constructors: []*Method{
			{Name: "New", Fn: newCounter},
			{Name: "From", Fn: newCounterFrom},
		},
		Methods: []*Method{
			{Name: "Inc", Fn: (*counter).Inc},
			{Name: "Value", Fn: (*counter).Value},
			{Name: "Pop", Fn: (*counter).Pop},
			{Name: "Add", Fn: (*counter).Add},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry("Counter", counterClass())
	require.NoError(t, err)

	assert.Equal(t, "Counter", r.CUT().Name)
	assert.Equal(t, []string{"Counter", "int"}, r.Types())
	assert.True(t, r.IsPrimitive("int"))
	assert.False(t, r.IsPrimitive("Counter"))
	assert.NotEmpty(t, r.Constants("int"))

	inc, ok := r.CUT().Method("Inc")
	require.True(t, ok)
	assert.Equal(t, []string{"int"}, inc.Params())
	assert.Equal(t, "", inc.Result())
	assert.Equal(t, "Counter.Inc", inc.Label())
	assert.Contains(t, inc.Entry(), "counter).Inc")

	pop, _ := r.CUT().Method("Pop")
	assert.Equal(t, "int", pop.Result())

	from, _ := r.CUT().Constructor("From")
	assert.True(t, from.Static)
	assert.Equal(t, "Counter", from.Result())
}

func TestNewRegistryRejectsMalformedClasses(t *testing.T) {
	_, err := NewRegistry("Missing", counterClass())
	assert.Error(t, err)

	wrongReceiver := counterClass()
	wrongReceiver.Methods = append(wrongReceiver.Methods, &Method{Name: "Bad", Fn: func(int) {}})
	_, err = NewRegistry("Counter", wrongReceiver)
	assert.Error(t, err)

	wrongConstructor := counterClass()
	wrongConstructor.Constructors = append(wrongConstructor.Constructors, &Method{Name: "Bad", Fn: func() int { return 0 }})
	_, err = NewRegistry("Counter", wrongConstructor)
	assert.Error(t, err)

	unsupported := counterClass()
	unsupported.Methods = append(unsupported.Methods, &Method{Name: "Bad", Fn: func(*counter, []byte) {}})
	_, err = NewRegistry("Counter", unsupported)
	assert.Error(t, err)

	_, err = NewRegistry("Counter", counterClass(), counterClass())
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	r, err := NewRegistry("Counter", counterClass())
	require.NoError(t, err)
	env := NewEnv(nil)

	from, _ := r.CUT().Constructor("From")
	c, err := from.Call(env, reflect.Value{}, []reflect.Value{reflect.ValueOf(1)})
	require.NoError(t, err)

	inc, _ := r.CUT().Method("Inc")
	_, err = inc.Call(env, c, []reflect.Value{reflect.ValueOf(2)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, env.Probes().IDs())

	value, _ := r.CUT().Method("Value")
	v, err := value.Call(env, c, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, int(v.Int()))

	pop, _ := r.CUT().Method("Pop")
	empty, _ := from.Call(env, reflect.Value{}, []reflect.Value{reflect.ValueOf(0)})
	_, err = pop.Call(env, empty, nil)
	assert.ErrorIs(t, err, errEmpty)
}

func TestSetConstants(t *testing.T) {
	r, err := NewRegistry("Counter", counterClass())
	require.NoError(t, err)

	require.NoError(t, r.SetConstants("int", 7, 8))
	assert.Equal(t, []any{7, 8}, r.Constants("int"))
	assert.Error(t, r.SetConstants("int", "seven"))
	assert.Error(t, r.SetConstants("Counter", 1))
}

func TestEnvRollback(t *testing.T) {
	env := NewEnv(nil)

	env.Begin()
	env.Hit(1)
	env.Begin()
	env.Hit(1)
	env.Hit(2)
	env.Rollback()

	// Probe 1 was first hit by the earlier operation and survives
	assert.Equal(t, []uint64{1}, env.Probes().IDs())
}

func TestEnvCheckpoint(t *testing.T) {
	g := guard.New()
	defer g.Done()
	env := NewEnv(g)

	require.NoError(t, g.Start(time.Millisecond))
	<-g.Expired()

	assert.PanicsWithError(t, (&guard.StoppedError{Budget: time.Millisecond}).Error(), func() { env.Hit(3) })
	assert.Error(t, env.Context().Err())
}
