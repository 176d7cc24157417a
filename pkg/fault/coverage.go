package fault

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
)

// CoverageKind is the kind of the fault dimension.
const CoverageKind = "faults"

func init() {
	coverage.RegisterKind(CoverageKind, func() coverage.Info { return NewCoverage() })
}

// Coverage is the fault dimension: a set of faults in discovery order where equal faults
// collapse.
type Coverage struct {
	mu     sync.Mutex
	order  []string
	faults map[string]*Fault
}

// NewCoverage returns an empty fault dimension.
func NewCoverage() *Coverage {
	return &Coverage{faults: make(map[string]*Fault)}
}

// Add inserts a fault and reports whether it was new.
func (c *Coverage) Add(f *Fault) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(f)
}

func (c *Coverage) addLocked(f *Fault) bool {
	key := f.Key()
	if _, ok := c.faults[key]; ok {
		return false
	}
	c.faults[key] = f.clone()
	c.order = append(c.order, key)
	return true
}

// Faults returns copies of the faults in discovery order.
func (c *Coverage) Faults() []*Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	faults := make([]*Fault, len(c.order))
	for i, key := range c.order {
		faults[i] = c.faults[key].clone()
	}
	return faults
}

func (c *Coverage) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Coverage) Kind() string     { return CoverageKind }
func (c *Coverage) Quality() float64 { return float64(c.Len()) }

func (c *Coverage) CreateEmpty() coverage.Info { return NewCoverage() }

func (c *Coverage) Clone() coverage.Info {
	clone := NewCoverage()
	for _, f := range c.Faults() {
		clone.addLocked(f)
	}
	return clone
}

func (c *Coverage) Merge(other coverage.Info) error {
	o, ok := other.(*Coverage)
	if !ok {
		return fmt.Errorf("%w: %s into %s", coverage.ErrKindMismatch, other.Kind(), c.Kind())
	}
	if o == c {
		return nil
	}
	faults := o.Faults()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range faults {
		c.addLocked(f)
	}
	return nil
}

func (c *Coverage) Contains(other coverage.Info) bool {
	o, ok := other.(*Coverage)
	if !ok {
		return false
	}
	if o == c {
		return true
	}
	faults := o.Faults()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range faults {
		if _, found := c.faults[f.Key()]; !found {
			return false
		}
	}
	return true
}

func (c *Coverage) String() string {
	faults := c.Faults()
	parts := make([]string, len(faults))
	for i, f := range faults {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%d faults\n%s", len(faults), strings.Join(parts, "\n"))
}

func (c *Coverage) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Faults())
}

func (c *Coverage) UnmarshalJSON(b []byte) error {
	var faults []*Fault
	if err := json.Unmarshal(b, &faults); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.faults = make(map[string]*Fault, len(faults))
	for _, f := range faults {
		c.addLocked(f)
	}
	return nil
}
