// Package obs builds the time-ordered list of observed events (tree
// nodes, unsequenced samples and rho sampling times) conditioned on by
// the tree densities.
package obs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/op/go-logging"

	"github.com/tgvaughan/EpiInf-sub000/emodel"
	"github.com/tgvaughan/EpiInf-sub000/tree"
)

var log = logging.MustGetLogger("obs")

// ErrNoSamples is returned if there is nothing to observe.
var ErrNoSamples = errors.New("no samples to condition on")

// EventType is a type of an observed event.
type EventType int

const (
	Coalescence EventType = iota
	Leaf
	SampledAncestor
	UnsequencedSample
	ObservationEnd
)

func (t EventType) String() string {
	switch t {
	case Coalescence:
		return "COALESCENCE"
	case Leaf:
		return "LEAF"
	case SampledAncestor:
		return "SAMPLED_ANCESTOR"
	case UnsequencedSample:
		return "UNSEQUENCED_SAMPLE"
	case ObservationEnd:
		return "OBSERVATION_END"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is an observed event.
type Event struct {
	Time         float64
	Type         EventType
	Multiplicity int
	// Lineages is the number of tree lineages extant just before
	// the event.
	Lineages int
	IsFinal  bool
}

// LineagesAfter returns the number of lineages just after the event.
func (e Event) LineagesAfter() int {
	switch e.Type {
	case Coalescence:
		return e.Lineages + e.Multiplicity
	case Leaf:
		return e.Lineages - e.Multiplicity
	}
	return e.Lineages
}

func (e Event) String() string {
	return fmt.Sprintf("%s x%d @ %g (k=%d)", e.Type, e.Multiplicity, e.Time, e.Lineages)
}

// List is a cached list of observed events. The list is rebuilt on
// access after MakeDirty was called.
type List struct {
	tree      *tree.Tree
	incidence []float64
	raw       []Event
	model     emodel.Model
	dirty     bool
	events    []Event
}

// NewList creates a list from a tree (may be nil) and ages of
// unsequenced samples before the end of the observation period.
func NewList(t *tree.Tree, incidenceAges []float64, m emodel.Model) (*List, error) {
	l := &List{tree: t, incidence: incidenceAges, model: m, dirty: true}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewListFromEvents creates a list from events given in forward time.
// Lineage counts and final flags are recomputed; rho and
// end-of-observation events are added from the model.
func NewListFromEvents(events []Event, m emodel.Model) (*List, error) {
	raw := make([]Event, len(events))
	copy(raw, events)
	l := &List{raw: raw, model: m, dirty: true}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) validate() error {
	if l.model == nil {
		return errors.New("no model")
	}
	if l.tree != nil || len(l.incidence) > 0 || len(l.raw) > 0 {
		return nil
	}
	for _, me := range l.model.Events() {
		if me.Type == emodel.RhoSampling {
			return nil
		}
	}
	return ErrNoSamples
}

// SetModel replaces the model, which defines the origin and the rho
// sampling times.
func (l *List) SetModel(m emodel.Model) error {
	l.model = m
	l.dirty = true
	return l.validate()
}

// MakeDirty marks the list for a rebuild. It should be called after
// the tree was modified in place.
func (l *List) MakeDirty() {
	l.dirty = true
}

// Model returns the model.
func (l *List) Model() emodel.Model {
	return l.model
}

// Origin returns the end of the observation period.
func (l *List) Origin() float64 {
	return l.model.Origin()
}

// Events returns the sorted events.
func (l *List) Events() []Event {
	if l.dirty {
		l.rebuild()
	}
	return l.events
}

func (l *List) timeFromAge(age float64) float64 {
	return l.model.Origin() - age
}

func (l *List) rebuild() {
	events := make([]Event, 0, len(l.raw)+len(l.incidence)+16)
	events = append(events, l.raw...)

	if l.tree != nil {
		l.tree.ClearCache()
		for node := range l.tree.Walker(nil) {
			if node.IsFake() {
				continue
			}
			ev := Event{
				Time:         l.timeFromAge(node.Height + l.tree.FinalSampleOffset),
				Multiplicity: 1,
			}
			switch {
			case node.IsSampledAncestor():
				ev.Type = SampledAncestor
			case node.IsTerminal():
				ev.Type = Leaf
			default:
				ev.Type = Coalescence
			}
			events = append(events, ev)
		}
	}

	for _, age := range l.incidence {
		events = append(events, Event{
			Time:         l.timeFromAge(age),
			Type:         UnsequencedSample,
			Multiplicity: 1,
		})
	}

	// Lack of samples at a rho sampling time is an observation too.
	for _, me := range l.model.Events() {
		if me.Type == emodel.RhoSampling {
			events = append(events, Event{Time: me.Time, Type: Leaf})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time == events[j].Time {
			return events[i].Type < events[j].Type
		}
		return events[i].Time < events[j].Time
	})
	events = append(events, Event{Time: l.model.Origin(), Type: ObservationEnd})

	collated := events[:1]
	for _, ev := range events[1:] {
		last := &collated[len(collated)-1]
		if ev.Type == last.Type && l.model.TimesEqual(ev.Time, last.Time) {
			last.Multiplicity += ev.Multiplicity
			continue
		}
		collated = append(collated, ev)
	}

	// Lineages reach zero at the end of the observation period.
	k := 0
	for _, ev := range collated {
		switch ev.Type {
		case Coalescence:
			k -= ev.Multiplicity
		case Leaf:
			k += ev.Multiplicity
		}
	}
	for i := range collated {
		collated[i].Lineages = k
		k = collated[i].LineagesAfter()
		collated[i].IsFinal = i == len(collated)-1
	}

	l.events = collated
	l.dirty = false
	log.Debugf("Rebuilt observed event list: %d events", len(collated))
}

// Dump writes the event list as a table.
func (l *List) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "time\tmultiplicity\ttype\tlineages\tisFinal")
	for _, ev := range l.Events() {
		fmt.Fprintf(bw, "%g\t%d\t%s\t%d\t%v\n", ev.Time, ev.Multiplicity, ev.Type, ev.Lineages, ev.IsFinal)
	}
	return bw.Flush()
}

// NSamples returns the number of observed samples.
func (l *List) NSamples() (n int) {
	for _, ev := range l.Events() {
		switch ev.Type {
		case Leaf, SampledAncestor, UnsequencedSample:
			n += ev.Multiplicity
		}
	}
	return
}

// FirstTime returns the time of the first event, which is negative
// when the tree is older than the origin.
func (l *List) FirstTime() float64 {
	events := l.Events()
	if len(events) == 0 {
		return math.Inf(1)
	}
	return events[0].Time
}
