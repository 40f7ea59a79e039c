package coex

import "fmt"

// Verify checks a finished trace tree against the given concrete input
// assignment. Every node must appear exactly once, every event must be
// well-formed, and every branch event's Taken flag must agree with
// re-evaluating its condition under the inputs. Violations report an
// *InvariantError; a malformed trace is never repaired.
func Verify(root *TraceNode, inputs map[string]*ConstantExpr) error {
	v := &traceVerifier{
		seen: make(map[*TraceNode]struct{}),
		eval: NewExprEvaluator(inputs),
	}
	return v.verify(root)
}

type traceVerifier struct {
	seen map[*TraceNode]struct{}
	eval *ExprEvaluator
}

func (v *traceVerifier) verify(node *TraceNode) error {
	if node == nil {
		return &InvariantError{Msg: "nil trace node"}
	} else if _, ok := v.seen[node]; ok {
		return &InvariantError{Msg: fmt.Sprintf("node %q visited twice", node.Label)}
	}
	v.seen[node] = struct{}{}

	if node.Label == "" {
		return &InvariantError{Msg: "unlabeled trace node"}
	}

	for _, event := range node.Events {
		if err := v.verifyEvent(node, event); err != nil {
			return err
		}
	}

	for _, child := range node.Children {
		if err := v.verify(child); err != nil {
			return err
		}
	}
	return nil
}

func (v *traceVerifier) verifyEvent(node *TraceNode, event Event) error {
	switch event := event.(type) {
	case *BranchEvent:
		if event.Cond == nil {
			return &InvariantError{Msg: fmt.Sprintf("%s: branch event without condition", node.Label)}
		} else if w := ExprWidth(event.Cond); w != WidthBool {
			return &InvariantError{Msg: fmt.Sprintf("%s: branch condition width %d", node.Label, w)}
		}

		// The recorded polarity must match replaying the condition under the
		// run's inputs.
		value, err := v.eval.Evaluate(event.Cond)
		if err != nil {
			return &InvariantError{Msg: fmt.Sprintf("%s: branch condition: %s", node.Label, err)}
		} else if got := value.IsTrue(); got != event.Taken {
			return &InvariantError{Msg: fmt.Sprintf("%s: branch site %d recorded taken=%v, replay gives %v", node.Label, event.Site, event.Taken, got)}
		}
		return nil

	case *AssertEvent:
		if event.Cond == nil {
			return &InvariantError{Msg: fmt.Sprintf("%s: assert event without condition", node.Label)}
		} else if w := ExprWidth(event.Cond); w != WidthBool {
			return &InvariantError{Msg: fmt.Sprintf("%s: assert condition width %d", node.Label, w)}
		} else if event.Kind != AssertMustHold && event.Kind != AssertExplore {
			return &InvariantError{Msg: fmt.Sprintf("%s: assert with kind %d", node.Label, int(event.Kind))}
		}
		return nil

	case *TaintEvent:
		if event.Expr == nil {
			return &InvariantError{Msg: fmt.Sprintf("%s: taint event without expression", node.Label)}
		}
		return nil

	default:
		return &InvariantError{Msg: fmt.Sprintf("%s: unknown event type %T", node.Label, event)}
	}
}

// Flatten returns the trace's events as a single pre-order stream. The
// stream preserves the order constraints were recorded in, so prefixes of it
// are valid path prefixes.
func Flatten(root *TraceNode) []Event {
	var events []Event
	var walk func(node *TraceNode)
	walk = func(node *TraceNode) {
		events = append(events, node.Events...)
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(root)
	return events
}

// PathConstraint folds the branch events of stream[:upto] into a conjunction
// list. Each condition is added with the polarity the run took; conjunctions
// are split into their operands. A negative upto takes the whole stream.
func PathConstraint(stream []Event, upto int) []Expr {
	if upto < 0 || upto > len(stream) {
		upto = len(stream)
	}

	var constraints []Expr
	for _, event := range stream[:upto] {
		branch, ok := event.(*BranchEvent)
		if !ok {
			continue
		}
		cond := branch.Cond
		if !branch.Taken {
			cond = NewIsZeroExpr(cond)
		}
		constraints = addConstraint(constraints, cond)
	}
	return constraints
}

// addConstraint appends expr to the constraint list, splitting boolean
// conjunctions into their operands.
func addConstraint(constraints []Expr, expr Expr) []Expr {
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND && ExprWidth(expr.LHS) == WidthBool {
		constraints = addConstraint(constraints, expr.LHS)
		return addConstraint(constraints, expr.RHS)
	}
	return append(constraints, expr)
}
