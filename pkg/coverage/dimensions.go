package coverage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	ProbesKind = "probes"
	LabelsKind = "labels"
)

func init() {
	RegisterKind(ProbesKind, func() Info { return NewProbes() })
	RegisterKind(LabelsKind, func() Info { return NewLabels() })
}

// Probes is a set of hit coverage probes, as emitted by the instrumented SUT.
type Probes struct {
	hits map[uint64]struct{}
}

// NewProbes creates a probe set holding the passed ids.
func NewProbes(ids ...uint64) *Probes {
	p := &Probes{hits: make(map[uint64]struct{}, len(ids))}
	for _, id := range ids {
		p.hits[id] = struct{}{}
	}
	return p
}

// Add records a probe hit.
func (p *Probes) Add(id uint64) {
	p.hits[id] = struct{}{}
}

// Has reports whether the probe was hit.
func (p *Probes) Has(id uint64) bool {
	_, ok := p.hits[id]
	return ok
}

// Remove forgets a probe hit.
func (p *Probes) Remove(id uint64) {
	delete(p.hits, id)
}

// IDs returns the sorted probe ids.
func (p *Probes) IDs() []uint64 {
	ids := make([]uint64, 0, len(p.hits))
	for id := range p.hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Probes) Len() int          { return len(p.hits) }
func (p *Probes) Kind() string      { return ProbesKind }
func (p *Probes) Quality() float64  { return float64(len(p.hits)) }
func (p *Probes) CreateEmpty() Info { return NewProbes() }
func (p *Probes) Clone() Info       { return NewProbes(p.IDs()...) }

func (p *Probes) Merge(other Info) error {
	o, ok := other.(*Probes)
	if !ok {
		return fmt.Errorf("%w: %s into %s", ErrKindMismatch, other.Kind(), p.Kind())
	}
	for id := range o.hits {
		p.hits[id] = struct{}{}
	}
	return nil
}

func (p *Probes) Contains(other Info) bool {
	o, ok := other.(*Probes)
	if !ok || len(o.hits) > len(p.hits) {
		return false
	}
	for id := range o.hits {
		if _, found := p.hits[id]; !found {
			return false
		}
	}
	return true
}

func (p *Probes) String() string {
	ids := p.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%d probes [%s]", len(ids), strings.Join(parts, " "))
}

func (p *Probes) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.IDs())
}

func (p *Probes) UnmarshalJSON(b []byte) error {
	var ids []uint64
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*p = *NewProbes(ids...)
	return nil
}

// Labels is a set of named observations, e.g. the methods that returned normally.
type Labels struct {
	labels map[string]struct{}
}

// NewLabels creates a label set holding the passed labels.
func NewLabels(labels ...string) *Labels {
	l := &Labels{labels: make(map[string]struct{}, len(labels))}
	for _, label := range labels {
		l.labels[label] = struct{}{}
	}
	return l
}

func (l *Labels) Add(label string) {
	l.labels[label] = struct{}{}
}

// Values returns the sorted labels.
func (l *Labels) Values() []string {
	values := make([]string, 0, len(l.labels))
	for label := range l.labels {
		values = append(values, label)
	}
	sort.Strings(values)
	return values
}

func (l *Labels) Len() int          { return len(l.labels) }
func (l *Labels) Kind() string      { return LabelsKind }
func (l *Labels) Quality() float64  { return float64(len(l.labels)) }
func (l *Labels) CreateEmpty() Info { return NewLabels() }
func (l *Labels) Clone() Info       { return NewLabels(l.Values()...) }

func (l *Labels) Merge(other Info) error {
	o, ok := other.(*Labels)
	if !ok {
		return fmt.Errorf("%w: %s into %s", ErrKindMismatch, other.Kind(), l.Kind())
	}
	for label := range o.labels {
		l.labels[label] = struct{}{}
	}
	return nil
}

func (l *Labels) Contains(other Info) bool {
	o, ok := other.(*Labels)
	if !ok || len(o.labels) > len(l.labels) {
		return false
	}
	for label := range o.labels {
		if _, found := l.labels[label]; !found {
			return false
		}
	}
	return true
}

func (l *Labels) String() string {
	return fmt.Sprintf("%d labels [%s]", len(l.labels), strings.Join(l.Values(), ", "))
}

func (l *Labels) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Values())
}

func (l *Labels) UnmarshalJSON(b []byte) error {
	var values []string
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	*l = *NewLabels(values...)
	return nil
}
