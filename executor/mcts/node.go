package mcts

import "math"

// Node is one position in the search tree. Statistics are kept from the
// perspective of the player who made the move leading into the node, so a
// parent always picks the child with the highest score.
type Node struct {
	Parent     *Node
	Children   map[int]*Node
	VisitCount int
	Q          float64 // running mean of backed-up values
	Prior      float64

	// actions lists Children keys in expansion order so selection and
	// tie-breaks are deterministic.
	actions []int
}

// NewNode creates a leaf with the given prior.
func NewNode(parent *Node, prior float64) *Node {
	return &Node{Parent: parent, Prior: prior}
}

// Expand adds a child for every action that does not have one yet.
// Existing children are left untouched.
func (n *Node) Expand(priors []ActionPrior) {
	if n.Children == nil {
		n.Children = make(map[int]*Node, len(priors))
	}
	for _, ap := range priors {
		if _, ok := n.Children[ap.Action]; ok {
			continue
		}
		n.Children[ap.Action] = NewNode(n, ap.Prior)
		n.actions = append(n.actions, ap.Action)
	}
}

// Select returns the child maximising the PUCT score. The first maximiser in
// expansion order wins ties.
func (n *Node) Select(cpuct float64) (int, *Node) {
	bestAction := -1
	var best *Node
	bestScore := math.Inf(-1)

	sqrtN := math.Sqrt(float64(n.VisitCount))
	for _, a := range n.actions {
		child := n.Children[a]
		// U(s,a) = Q(s,a) + c * P(s,a) * sqrt(N(s)) / (1 + N(s,a))
		score := child.Q + cpuct*child.Prior*sqrtN/(1+float64(child.VisitCount))
		if score > bestScore {
			bestScore = score
			bestAction = a
			best = child
		}
	}
	return bestAction, best
}

// Update folds one leaf value into the running mean.
func (n *Node) Update(value float64) {
	n.VisitCount++
	n.Q += (value - n.Q) / float64(n.VisitCount)
}

// UpdateRecursive backs value up to the root, flipping its sign at every
// level because the players alternate.
func (n *Node) UpdateRecursive(value float64) {
	for node := n; node != nil; node = node.Parent {
		node.Update(value)
		value = -value
	}
}

func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }
func (n *Node) IsRoot() bool { return n.Parent == nil }

// Actions returns the expanded actions in expansion order.
func (n *Node) Actions() []int { return n.actions }

// Child returns the child reached by action, or nil.
func (n *Node) Child(action int) *Node { return n.Children[action] }

// mostVisited returns the child action with the highest visit count, or -1
// for a leaf.
func (n *Node) mostVisited() int {
	bestAction, bestVisits := -1, -1
	for _, a := range n.actions {
		if v := n.Children[a].VisitCount; v > bestVisits {
			bestVisits = v
			bestAction = a
		}
	}
	return bestAction
}

// depth counts edges from the root.
func (n *Node) depth() int {
	d := 0
	for node := n; node.Parent != nil; node = node.Parent {
		d++
	}
	return d
}
