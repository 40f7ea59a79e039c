package coex

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/immutable"
)

// TraceLabelToplevel is the label of every trace root.
const TraceLabelToplevel = "toplevel"

// TraceNode is one node in a run's trace tree. The root is always labeled
// "toplevel" and has exactly one child, the top-level call. Nested calls add
// one child node per call. Trees are owned by their run and must not be
// mutated once the run returns.
type TraceNode struct {
	Label    string
	Events   []Event
	Children []*TraceNode
}

// NewTraceNode returns a new trace node with the given label.
func NewTraceNode(label string) *TraceNode {
	return &TraceNode{Label: label}
}

// addChild appends a new child node and returns it.
func (n *TraceNode) addChild(label string) *TraceNode {
	child := NewTraceNode(label)
	n.Children = append(n.Children, child)
	return child
}

// addEvent appends an event to the node.
func (n *TraceNode) addEvent(event Event) {
	n.Events = append(n.Events, event)
}

// String returns an indented rendering of the subtree. Used for debugging.
func (n *TraceNode) String() string {
	var buf strings.Builder
	n.writeTo(&buf, 0)
	return buf.String()
}

func (n *TraceNode) writeTo(buf *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(buf, "%s%s\n", indent, n.Label)
	for _, event := range n.Events {
		fmt.Fprintf(buf, "%s| %s\n", indent, event)
	}
	for _, child := range n.Children {
		child.writeTo(buf, depth+1)
	}
}

// Event is a constraint-relevant occurrence recorded during a run.
type Event interface {
	event()
	String() string
}

func (*BranchEvent) event() {}
func (*AssertEvent) event() {}
func (*TaintEvent) event()  {}

// BranchEvent records a conditional branch on a symbolic condition.
// Cond is the condition expression as evaluated; Taken reports which way the
// concrete run went. Site identifies the branch instruction within its
// function.
type BranchEvent struct {
	Cond  Expr
	Taken bool
	Site  int
}

// String returns the string representation of the event.
func (e *BranchEvent) String() string {
	return fmt.Sprintf("branch site=%d taken=%v cond=%s", e.Site, e.Taken, e.Cond)
}

// AssertKind distinguishes the two assertion modes.
type AssertKind int

// Assertion kinds.
const (
	// AssertMustHold marks a condition expected to hold on every input
	// reaching it.
	AssertMustHold = AssertKind(iota + 1)

	// AssertExplore marks a condition whose reachability is queried.
	AssertExplore
)

// String returns the string representation of the kind.
func (k AssertKind) String() string {
	switch k {
	case AssertMustHold:
		return "must-hold"
	case AssertExplore:
		return "explore"
	default:
		return fmt.Sprintf("AssertKind<%d>", int(k))
	}
}

// AssertEvent records an assertion encountered during a run. Assertions have
// no control effect; they are checked after the fact by Check().
type AssertEvent struct {
	Cond Expr
	Kind AssertKind
	Site int
}

// String returns the string representation of the event.
func (e *AssertEvent) String() string {
	return fmt.Sprintf("assert site=%d kind=%s cond=%s", e.Site, e.Kind, e.Cond)
}

// TaintEvent records a symbolic value escaping the run, such as a symbolic
// return value from the top-level call.
type TaintEvent struct {
	Name string
	Expr Expr
}

// String returns the string representation of the event.
func (e *TaintEvent) String() string {
	return fmt.Sprintf("taint name=%s expr=%s", e.Name, e.Expr)
}

// Metadata is the run-scoped context threaded through an execution. It owns
// the trace tree, the cursor stack into it, the input substitution table and
// the pass record accumulator. A Metadata must not be shared across runs.
type Metadata struct {
	root   *TraceNode
	stack  []*TraceNode
	subs   *immutable.SortedMap[string, Expr]
	inputs map[string]*ConstantExpr
	record []Event
}

// NewMetadata returns metadata for a fresh run. The cursor starts at the
// toplevel root.
func NewMetadata() *Metadata {
	root := NewTraceNode(TraceLabelToplevel)
	return &Metadata{
		root:   root,
		stack:  []*TraceNode{root},
		subs:   immutable.NewSortedMap[string, Expr](nil),
		inputs: make(map[string]*ConstantExpr),
	}
}

// Root returns the root of the trace tree.
func (md *Metadata) Root() *TraceNode {
	return md.root
}

// Current returns the trace node the run is currently recording into.
func (md *Metadata) Current() *TraceNode {
	return md.stack[len(md.stack)-1]
}

// PushFrame opens a child trace node for a nested call and moves the cursor
// into it.
func (md *Metadata) PushFrame(label string) *TraceNode {
	child := md.Current().addChild(label)
	md.stack = append(md.stack, child)
	return child
}

// PopFrame moves the cursor back to the parent node.
func (md *Metadata) PopFrame() {
	assert(len(md.stack) > 1, "pop frame: cursor already at root")
	md.stack = md.stack[:len(md.stack)-1]
}

// AddEvent records an event on the current trace node.
func (md *Metadata) AddEvent(event Event) {
	md.Current().addEvent(event)
}

// SetSub binds a substitution expression for a named input variable.
// Substitutions are consulted when the run wraps its arguments.
func (md *Metadata) SetSub(name string, expr Expr) {
	md.subs = md.subs.Set(name, expr)
}

// Sub returns the substitution bound to name, if any.
func (md *Metadata) Sub(name string) (Expr, bool) {
	return md.subs.Get(name)
}

// Subs returns all bound substitutions in name order.
func (md *Metadata) Subs() map[string]Expr {
	m := make(map[string]Expr, md.subs.Len())
	itr := md.subs.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		m[k] = v
	}
	return m
}

// bindInput records the concrete assignment of a named input variable.
// The verifier replays branch conditions under this assignment.
func (md *Metadata) bindInput(name string, value *ConstantExpr) {
	md.inputs[name] = value
}

// Inputs returns the concrete input assignment of the run.
func (md *Metadata) Inputs() map[string]*ConstantExpr {
	m := make(map[string]*ConstantExpr, len(md.inputs))
	for name, value := range md.inputs {
		m[name] = value
	}
	return m
}

// Record appends an event to the pass record accumulator. Unlike AddEvent,
// recorded events do not join the trace tree; they are returned on the
// run result for callers of instrumentation passes.
func (md *Metadata) Record(event Event) {
	md.record = append(md.record, event)
}

// Recorded returns all events accumulated by instrumentation passes.
func (md *Metadata) Recorded() []Event {
	return md.record
}
