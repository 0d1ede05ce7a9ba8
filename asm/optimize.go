package asm

// Optimize runs one peephole pass over the function's statement tree using
// an explicit work stack, so tree depth never grows the call stack.
//
// For each visited node whose behavior defines Optimize, the returned node
// replaces the original in every already-visited operand list (matched by
// identity, root list included) when it differs; a node returned unchanged
// but with a rewritten opcode also counts as a change. Operand lists are
// queued before the parent's own rewrite runs, so traversal continues into
// the replacement's children.
//
// The contract is a single pass: callers decide whether to iterate on the
// returned change count. Use OptimizeAll for a fixed point.
func (fn *FunctionDefinition) Optimize() int {
	changed := 0

	// frames holds every operand list whose slots may still reference a
	// node that a later rewrite replaces.
	frames := [][]*Node{fn.Body}
	work := make([]*Node, 0, len(fn.Body))
	for i := len(fn.Body) - 1; i >= 0; i-- {
		work = append(work, fn.Body[i])
	}

	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if n == nil {
			continue
		}

		if len(n.Kids) > 0 {
			frames = append(frames, n.Kids)
			for i := len(n.Kids) - 1; i >= 0; i-- {
				work = append(work, n.Kids[i])
			}
		}

		b := n.Behavior
		if b == nil || b.Optimize == nil {
			continue
		}
		before := n.Op
		repl := b.Optimize(fn, n)
		if repl != n {
			substitute(frames, work, n, repl)
			changed++
		} else if n.Op != before {
			changed++
		}
	}
	return changed
}

// OptimizeAll repeats Optimize until a pass reports no changes and returns
// the total change count.
func (fn *FunctionDefinition) OptimizeAll() int {
	total := 0
	for {
		n := fn.Optimize()
		if n == 0 {
			return total
		}
		total += n
	}
}

// substitute replaces every identity occurrence of old in the queued
// operand lists and the remaining work stack.
func substitute(frames [][]*Node, work []*Node, old, repl *Node) {
	for _, frame := range frames {
		for i, slot := range frame {
			if slot == old {
				frame[i] = repl
			}
		}
	}
	for i, queued := range work {
		if queued == old {
			work[i] = repl
		}
	}
}
