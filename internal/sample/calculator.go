package sample

import (
	"errors"

	"github.com/DominicWuest/seqgen/pkg/sut"
)

var ErrNegative = errors.New("negative operand")

// Calculator remembers the result of its last operation.
type Calculator struct {
	memory int
}

func NewCalculator(env *sut.Env) *Calculator {
	env.Hit(300)
	return &Calculator{}
}

func (c *Calculator) Memory(env *sut.Env) int {
	env.Hit(301)
	return c.memory
}

func (c *Calculator) Divide(env *sut.Env, a, b int) int {
	env.Hit(302)
	c.memory = quotient(a, b)
	return c.memory
}

func quotient(a, b int) int {
	return a / b
}

func (c *Calculator) Sqrt(env *sut.Env, n int) (int, error) {
	if n < 0 {
		env.Hit(303)
		return 0, ErrNegative
	}
	env.Hit(304)
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	c.memory = r
	return r, nil
}

// Steps counts the steps of the collatz sequence starting at n.
func (c *Calculator) Steps(env *sut.Env, n int) int {
	env.Hit(305)
	steps := 0
	for n != 1 {
		env.Hit(306)
		if n%2 == 0 {
			n /= 2
		} else {
			n = 3*n + 1
		}
		steps++
	}
	c.memory = steps
	return steps
}

// Abs is static.
func Abs(env *sut.Env, n int) int {
	if n < 0 {
		env.Hit(307)
		return -n
	}
	env.Hit(308)
	return n
}
