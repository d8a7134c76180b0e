// Package tunable holds integer parameters that can be adjusted while the robot is running.
package tunable

import (
	"fmt"
	"sync/atomic"
)

type Tunable struct {
	Name     string
	Min, Max int64
	Value    int64
}

// Add nudges the value by delta, clamped to [Min, Max], and returns the new value.
func (t *Tunable) Add(delta int) int {
	for {
		old := atomic.LoadInt64(&t.Value)
		newV := t.clamp(old + int64(delta))
		if atomic.CompareAndSwapInt64(&t.Value, old, newV) {
			fmt.Println("Tunable", t.Name, "=", newV)
			return int(newV)
		}
	}
}

func (t *Tunable) Get() int {
	return int(atomic.LoadInt64(&t.Value))
}

func (t *Tunable) clamp(v int64) int64 {
	if v < t.Min {
		return t.Min
	}
	if v > t.Max {
		return t.Max
	}
	return v
}

func (t *Tunable) String() string {
	return fmt.Sprintf("%s=%d [%d..%d]", t.Name, t.Get(), t.Min, t.Max)
}

type Tunables struct {
	All      []*Tunable
	selected int
}

func (t *Tunables) Create(name string, value, min, max int) *Tunable {
	newTunable := &Tunable{
		Name: name,
		Min:  int64(min),
		Max:  int64(max),
	}
	newTunable.Value = newTunable.clamp(int64(value))
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) SelectNext() *Tunable {
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	fmt.Println("Tunable", t.Current().Name, "selected, value:", t.Current().Get())
	return t.Current()
}

func (t *Tunables) SelectPrev() *Tunable {
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	fmt.Println("Tunable", t.Current().Name, "selected, value:", t.Current().Get())
	return t.Current()
}

func (t *Tunables) Current() *Tunable {
	return t.All[t.selected]
}
