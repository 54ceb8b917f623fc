package ir

// NodeKind tags a Structured control-flow node. This tree is built by
// lower.go in the same pass that emits the flat Instructions slice; it
// exists solely so the WebAssembly backend can emit properly nested
// block/loop/br/br_if instead of attempting (unsoundly) to translate
// Label/Jump/JumpIf directly, per spec §4.7/§9.
type NodeKind int

const (
	// NStraight holds a run of instructions with no control transfer:
	// no Label, Jump, or JumpIf among them. Safe to emit verbatim.
	NStraight NodeKind = iota
	// NSeq is an ordered sequence of child nodes (a statement list).
	NSeq
	// NIf holds a condition (straight-line, value left on stack) and a
	// then/else body, mirroring the source's if/else.
	NIf
	// NWhile holds a condition and a loop body.
	NWhile
	// NShortCircuit holds the left/right operand sub-trees of a
	// short-circuiting && or ||.
	NShortCircuit
)

// Node is one entry in the Structured tree.
type Node struct {
	Kind NodeKind

	Instructions []Instruction // NStraight

	Children []Node // NSeq

	Cond    []Node // NIf, NWhile: condition evaluation, leaves a value on stack
	Body    []Node // NIf (then), NWhile (loop body)
	Else    []Node // NIf
	HasElse bool
	IsExpr  bool // NIf: true for a ternary (value-producing), false for an if-statement

	ShortOp BinOp  // NShortCircuit: And or Or
	Left    []Node // NShortCircuit
	Right   []Node // NShortCircuit
}

// Straight wraps a flat instruction run as a leaf Structured node.
func Straight(ins ...Instruction) Node {
	return Node{Kind: NStraight, Instructions: ins}
}

// Seq concatenates groups of Structured nodes into one sequence, dropping
// empty NStraight leaves so the Wasm backend never has to special-case
// them. Nodes are copied as they are; nested NSeq nodes are not flattened.
func Seq(nodes ...[]Node) []Node {
	var out []Node
	for _, group := range nodes {
		for _, n := range group {
			if n.Kind == NStraight && len(n.Instructions) == 0 {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}
