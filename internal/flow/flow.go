// internal/flow/flow.go
package flow

import "github.com/kanbanflow/campaign-engine/internal/model"

type NodeKind string

const (
	// NodeStep is a regular flow step.
	NodeStep NodeKind = "step"
	// NodeCycle marks a back-edge to a step already on the current path.
	NodeCycle NodeKind = "cycle"
	// NodeDangling marks a nextStepId that resolves to no step.
	NodeDangling NodeKind = "dangling"
	// NodeEnd marks a button with no nextStepId (end of flow).
	NodeEnd NodeKind = "end"
)

// Node is one entry of the preview tree produced by Describe.
type Node struct {
	Kind     NodeKind `json:"kind"`
	StepID   string   `json:"step_id,omitempty"`
	Title    string   `json:"title,omitempty"`
	Label    string   `json:"label,omitempty"` // button label leading here
	Children []*Node  `json:"children,omitempty"`
}

// StartStep picks the entry step: the one matching startID, falling back to
// the first step when startID is empty or unresolvable. Nil when there are
// no steps at all.
func StartStep(steps []model.Step, startID string) *model.Step {
	if startID != "" {
		if s := find(steps, startID); s != nil {
			return s
		}
	}
	if len(steps) > 0 {
		return &steps[0]
	}
	return nil
}

func find(steps []model.Step, id string) *model.Step {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
	}
	return nil
}

// Describe walks the step graph depth-first from startID and returns the
// preview tree. The visited set is per path, copied on recursion: a step
// reached again through an independent branch renders normally, while
// re-entering a step already on the current path stops with a cycle node.
// Authors do create loops on purpose, so this is the only guard.
func Describe(steps []model.Step, startID string) *Node {
	start := StartStep(steps, startID)
	if start == nil {
		return nil
	}
	return describe(steps, start, "", nil)
}

func describe(steps []model.Step, step *model.Step, label string, onPath map[string]bool) *Node {
	node := &Node{Kind: NodeStep, StepID: step.ID, Title: step.Title, Label: label}

	path := make(map[string]bool, len(onPath)+1)
	for id := range onPath {
		path[id] = true
	}
	path[step.ID] = true

	for _, b := range step.Buttons {
		if b.NextStepID == "" {
			node.Children = append(node.Children, &Node{Kind: NodeEnd, Label: b.Label})
			continue
		}
		next := find(steps, b.NextStepID)
		switch {
		case next == nil:
			node.Children = append(node.Children, &Node{Kind: NodeDangling, StepID: b.NextStepID, Label: b.Label})
		case path[next.ID]:
			node.Children = append(node.Children, &Node{Kind: NodeCycle, StepID: next.ID, Title: next.Title, Label: b.Label})
		default:
			node.Children = append(node.Children, describe(steps, next, b.Label, path))
		}
	}
	return node
}

// Walk calls onVisit for every step reachable from startID, in the same
// depth-first order as Describe. A step on two independent paths is visited
// once per path.
func Walk(steps []model.Step, startID string, onVisit func(model.Step)) {
	root := Describe(steps, startID)
	var rec func(n *Node)
	rec = func(n *Node) {
		if n == nil || n.Kind != NodeStep {
			return
		}
		if s := find(steps, n.StepID); s != nil {
			onVisit(*s)
		}
		for _, c := range n.Children {
			rec(c)
		}
	}
	rec(root)
}
