// Package metrics exposes kernel bookkeeping in the shape of runtime/metrics:
// a fixed set of named samples that callers read in bulk.
package metrics

import (
	"github.com/piccolo-os/piccolo/kernel"
)

type Description struct {
	Name        string
	Description string
	Kind        ValueKind
	Cumulative  bool
}

var descriptions = []Description{
	{
		Name:        "/kernel/tasks/reclaimed:tasks",
		Description: "Tasks reclaimed after their entry function returned.",
		Kind:        KindUint64,
		Cumulative:  true,
	},
	{
		Name:        "/kernel/tasks/live:tasks",
		Description: "Tasks currently holding an arena slot.",
		Kind:        KindUint64,
	},
	{
		Name:        "/kernel/slots/free:slots",
		Description: "Arena slots available for new tasks.",
		Kind:        KindUint64,
	},
	{
		Name:        "/kernel/stack/in-use:bytes",
		Description: "Stack memory held by live tasks.",
		Kind:        KindUint64,
	},
	{
		Name:        "/kernel/stack/total:bytes",
		Description: "Size of the stack memory region.",
		Kind:        KindUint64,
	},
	{
		Name:        "/kernel/stack/utilization:ratio",
		Description: "Fraction of the stack memory region held by live tasks.",
		Kind:        KindFloat64,
	},
	{
		Name:        "/kernel/sched/switches:switches",
		Description: "Context switches into tasks, summed over all cores.",
		Kind:        KindUint64,
		Cumulative:  true,
	},
	{
		Name:        "/kernel/sched/ready:tasks",
		Description: "Tasks in the ready queues, summed over all cores.",
		Kind:        KindUint64,
	},
	{
		Name:        "/kernel/sched/switches-by-core:switches",
		Description: "Context switches per core. Bucket i counts the switches of core i.",
		Kind:        KindFloat64Histogram,
		Cumulative:  true,
	},
}

// All returns a description of every supported metric.
func All() []Description {
	return append([]Description(nil), descriptions...)
}

// Source is anything that can produce a kernel snapshot, normally a
// *kernel.Kernel.
type Source interface {
	Stats() kernel.Stats
}

type Float64Histogram struct {
	Counts  []uint64
	Buckets []float64
}

type Sample struct {
	Name  string
	Value Value
}

// Read populates each Value in m from a single snapshot of src. Unknown names
// get a KindBad value.
func Read(src Source, m []Sample) {
	st := src.Stats()
	var switches, ready uint64
	hist := &Float64Histogram{
		Counts:  make([]uint64, len(st.Cores)),
		Buckets: make([]float64, len(st.Cores)+1),
	}
	for i, c := range st.Cores {
		switches += c.Switches
		ready += uint64(c.Ready)
		hist.Counts[i] = c.Switches
		hist.Buckets[i] = float64(c.ID)
	}
	hist.Buckets[len(st.Cores)] = float64(len(st.Cores))

	for i := range m {
		var v Value
		switch m[i].Name {
		case "/kernel/tasks/reclaimed:tasks":
			v = uint64Value(st.Kills)
		case "/kernel/tasks/live:tasks":
			v = uint64Value(uint64(st.Live))
		case "/kernel/slots/free:slots":
			v = uint64Value(uint64(st.FreeSlots))
		case "/kernel/stack/in-use:bytes":
			v = uint64Value(uint64(st.StackInUse))
		case "/kernel/stack/total:bytes":
			v = uint64Value(uint64(st.StackTotal))
		case "/kernel/stack/utilization:ratio":
			var ratio float64
			if st.StackTotal > 0 {
				ratio = float64(st.StackInUse) / float64(st.StackTotal)
			}
			v = Value{kind: KindFloat64, f: ratio}
		case "/kernel/sched/switches:switches":
			v = uint64Value(switches)
		case "/kernel/sched/ready:tasks":
			v = uint64Value(ready)
		case "/kernel/sched/switches-by-core:switches":
			v = Value{kind: KindFloat64Histogram, hist: hist}
		}
		m[i].Value = v
	}
}

type Value struct {
	kind ValueKind
	u    uint64
	f    float64
	hist *Float64Histogram
}

func uint64Value(u uint64) Value {
	return Value{kind: KindUint64, u: u}
}

// Float64 returns the value of a KindFloat64 metric. It panics for any other
// kind.
func (v Value) Float64() float64 {
	if v.kind != KindFloat64 {
		panic("metrics: called Float64 on non-float64 metric value")
	}
	return v.f
}

func (v Value) Float64Histogram() *Float64Histogram {
	if v.kind != KindFloat64Histogram {
		panic("metrics: called Float64Histogram on non-histogram metric value")
	}
	return v.hist
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) Uint64() uint64 {
	if v.kind != KindUint64 {
		panic("metrics: called Uint64 on non-uint64 metric value")
	}
	return v.u
}

type ValueKind int

const (
	KindBad ValueKind = iota
	KindUint64
	KindFloat64
	KindFloat64Histogram
)
