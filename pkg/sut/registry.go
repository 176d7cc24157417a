// Package sut describes the system under test to the generator and the executors.
//
// A [Registry] holds the classes of the SUT. Each [Class] lists its constructors and methods
// as plain Go functions: instance methods take the receiver as first parameter (method
// expressions such as (*Account).Deposit fit), optionally followed by a *[Env]. A trailing
// error result is the method's declared way of failing.
package sut

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
)

var (
	envType   = reflect.TypeFor[*Env]()
	errorType = reflect.TypeFor[error]()
)

// Primitive types usable as reference types, with their default constant pools.
var primitives = map[reflect.Type][]any{
	reflect.TypeFor[int]():     {-1, 0, 1, 2, 10, 100},
	reflect.TypeFor[int64]():   {int64(-1), int64(0), int64(1), int64(1 << 40)},
	reflect.TypeFor[bool]():    {false, true},
	reflect.TypeFor[string](): {"", "a", "hello"},
	reflect.TypeFor[float64](): {0.0, -1.5, 3.25},
}

// A Method is a constructor or method of a class.
type Method struct {
	Name   string
	Fn     any     // The Go function implementing the method
	Static bool    // Static methods and constructors take no receiver
	Throws []error // Panics the method declares it may raise

	class      *Class
	fn         reflect.Value
	usesEnv    bool
	params     []string
	paramTypes []reflect.Type
	result     string
	returnsErr bool
	entry      string
	file       string
	line       int
}

// Class returns the class the method belongs to.
func (m *Method) Class() *Class { return m.class }

// Label returns the name of the method qualified by its class name.
func (m *Method) Label() string { return m.class.Name + "." + m.Name }

// Params returns the repository types of the method's parameters, receiver and env excluded.
func (m *Method) Params() []string { return append([]string(nil), m.params...) }

// ParamTypes returns the Go types of the method's parameters, receiver and env excluded.
func (m *Method) ParamTypes() []reflect.Type { return append([]reflect.Type(nil), m.paramTypes...) }

// Result returns the repository type of the method's result or "" if it has none.
func (m *Method) Result() string { return m.result }

// Entry returns the fully qualified name of the Go function implementing the method.
func (m *Method) Entry() string { return m.entry }

// Source returns the location of the Go function implementing the method.
func (m *Method) Source() (file string, line int) { return m.file, m.line }

// Call invokes the method. receiver is ignored for static methods. The returned value is
// invalid if the method has no result; the returned error is the method's declared error
// result. Panics raised by the method are not recovered.
func (m *Method) Call(env *Env, receiver reflect.Value, args []reflect.Value) (reflect.Value, error) {
	in := make([]reflect.Value, 0, len(args)+2)
	if !m.Static {
		in = append(in, receiver)
	}
	if m.usesEnv {
		in = append(in, reflect.ValueOf(env))
	}
	in = append(in, args...)

	out := m.fn.Call(in)

	var result reflect.Value
	var err error
	if m.returnsErr {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) > 0 && m.result != "" {
		result = out[0]
	}
	return result, err
}

// A Class is a type of the SUT.
type Class struct {
	Name         string
	Type         reflect.Type // The Go type of the class' values, usually a pointer type
	Contracts    bool         // Whether the class carries executable contracts
	Constructors []*Method
	Methods      []*Method
}

// Constructor returns the constructor with the passed name.
func (c *Class) Constructor(name string) (*Method, bool) {
	return find(c.Constructors, name)
}

// Method returns the method with the passed name.
func (c *Class) Method(name string) (*Method, bool) {
	return find(c.Methods, name)
}

func find(methods []*Method, name string) (*Method, bool) {
	for _, m := range methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// A Registry holds the classes of the SUT and the types of the reference repository.
type Registry struct {
	cut     string
	classes map[string]*Class
	order   []string

	types     map[string]reflect.Type
	typeNames map[reflect.Type]string
	constants map[string][]any
}

// NewRegistry validates the classes and creates a registry whose class under test is cut.
func NewRegistry(cut string, classes ...*Class) (*Registry, error) {
	r := &Registry{
		cut:       cut,
		classes:   make(map[string]*Class),
		types:     make(map[string]reflect.Type),
		typeNames: make(map[reflect.Type]string),
		constants: make(map[string][]any),
	}

	for _, c := range classes {
		if c.Name == "" || c.Type == nil {
			return nil, fmt.Errorf("class %q needs a name and a type", c.Name)
		}
		if _, ok := r.classes[c.Name]; ok {
			return nil, fmt.Errorf("class %s registered twice", c.Name)
		}
		if _, ok := primitives[c.Type]; ok {
			return nil, fmt.Errorf("class %s uses primitive type %s", c.Name, c.Type)
		}
		r.classes[c.Name] = c
		r.order = append(r.order, c.Name)
		r.types[c.Name] = c.Type
		r.typeNames[c.Type] = c.Name
	}
	if _, ok := r.classes[cut]; !ok {
		return nil, fmt.Errorf("class under test %s is not registered", cut)
	}

	var errs []error
	for _, name := range r.order {
		c := r.classes[name]
		for _, m := range c.Constructors {
			m.Static = true
			if err := r.bind(c, m, true); err != nil {
				errs = append(errs, err)
			}
		}
		for _, m := range c.Methods {
			if err := r.bind(c, m, false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// typeName resolves a Go type to a repository type, registering primitives on first use.
func (r *Registry) typeName(t reflect.Type) (string, bool) {
	if name, ok := r.typeNames[t]; ok {
		return name, true
	}
	pool, ok := primitives[t]
	if !ok {
		return "", false
	}
	name := t.String()
	r.types[name] = t
	r.typeNames[t] = name
	r.constants[name] = append([]any(nil), pool...)
	return name, true
}

func (r *Registry) bind(c *Class, m *Method, constructor bool) error {
	fn := reflect.ValueOf(m.Fn)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("%s.%s is not a function", c.Name, m.Name)
	}
	ft := fn.Type()
	m.class = c
	m.fn = fn
	f := runtime.FuncForPC(fn.Pointer())
	m.entry = f.Name()
	m.file, m.line = f.FileLine(f.Entry())
	m.params, m.paramTypes, m.usesEnv = nil, nil, false

	i := 0
	if !m.Static {
		if ft.NumIn() == 0 || ft.In(0) != c.Type {
			return fmt.Errorf("method %s.%s must take %s as its first parameter", c.Name, m.Name, c.Type)
		}
		i++
	}
	if i < ft.NumIn() && ft.In(i) == envType {
		m.usesEnv = true
		i++
	}
	for ; i < ft.NumIn(); i++ {
		name, ok := r.typeName(ft.In(i))
		if !ok {
			return fmt.Errorf("parameter %d of %s.%s has unsupported type %s", i, c.Name, m.Name, ft.In(i))
		}
		m.params = append(m.params, name)
		m.paramTypes = append(m.paramTypes, ft.In(i))
	}

	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errorType {
		m.returnsErr = true
		outs--
	}
	if outs > 1 {
		return fmt.Errorf("%s.%s returns more than one value besides an error", c.Name, m.Name)
	}
	m.result = ""
	if outs == 1 {
		if name, ok := r.typeName(ft.Out(0)); ok {
			m.result = name
		}
	}
	if constructor && m.result != c.Name {
		return fmt.Errorf("constructor %s.%s must return %s", c.Name, m.Name, c.Type)
	}
	return nil
}

// CUT returns the class under test.
func (r *Registry) CUT() *Class {
	return r.classes[r.cut]
}

// Class returns the class with the passed name.
func (r *Registry) Class(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Classes returns all classes in registration order.
func (r *Registry) Classes() []*Class {
	classes := make([]*Class, len(r.order))
	for i, name := range r.order {
		classes[i] = r.classes[name]
	}
	return classes
}

// Types returns the sorted names of all repository types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.types))
	for name := range r.types {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Type returns the Go type of a repository type.
func (r *Registry) Type(name string) (reflect.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// IsPrimitive reports whether the repository type is a primitive type.
func (r *Registry) IsPrimitive(name string) bool {
	t, ok := r.types[name]
	if !ok {
		return false
	}
	_, primitive := primitives[t]
	return primitive
}

// Constants returns the constant pool of a primitive type.
func (r *Registry) Constants(typ string) []any {
	return append([]any(nil), r.constants[typ]...)
}

// SetConstants replaces the constant pool of a primitive type used by the SUT.
func (r *Registry) SetConstants(typ string, values ...any) error {
	t, ok := r.types[typ]
	if !ok || !r.IsPrimitive(typ) {
		return fmt.Errorf("%s is not a primitive type of the registry", typ)
	}
	for _, v := range values {
		if reflect.TypeOf(v) != t {
			return fmt.Errorf("constant %#v is not of type %s", v, typ)
		}
	}
	r.constants[typ] = append([]any(nil), values...)
	return nil
}
