package sample

import (
	"errors"

	"github.com/DominicWuest/seqgen/pkg/sut"
)

var ErrEmpty = errors.New("stack is empty")

// Stack is a stack of ints without contracts.
type Stack struct {
	items []int
}

func NewStack(env *sut.Env) *Stack {
	env.Hit(200)
	return &Stack{}
}

func NewStackOf(env *sut.Env, capacity int) *Stack {
	env.Hit(201)
	return &Stack{items: make([]int, 0, capacity)}
}

func (s *Stack) Push(env *sut.Env, v int) {
	env.Hit(202)
	s.items = append(s.items, v)
}

func (s *Stack) Pop(env *sut.Env) (int, error) {
	if len(s.items) == 0 {
		env.Hit(203)
		return 0, ErrEmpty
	}
	env.Hit(204)
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, nil
}

// MustPop panics with ErrEmpty on an empty stack.
func (s *Stack) MustPop(env *sut.Env) int {
	v, err := s.Pop(env)
	if err != nil {
		panic(err)
	}
	return v
}

// Peek returns the topmost item.
func (s *Stack) Peek(env *sut.Env) int {
	env.Hit(205)
	return s.items[len(s.items)-1]
}

func (s *Stack) Size(env *sut.Env) int {
	env.Hit(206)
	return len(s.items)
}

// Append pushes all items of other.
func (s *Stack) Append(env *sut.Env, other *Stack) {
	env.Hit(207)
	for _, v := range other.items {
		env.Hit(208)
		s.items = append(s.items, v)
	}
}
