// Package skill models the XP-gated skill forest.
//
// Each node has at most one parent. A node is purchasable once its parent is
// owned; roots flagged PreUnlocked are owned by every user from the start.
package skill

import (
	"fmt"
	"sort"

	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NODE
// ══════════════════════════════════════════════════════════════════════════════

// Node is an immutable skill definition.
type Node struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`
	Parent      string `yaml:"parent,omitempty" json:"parent,omitempty"`
	Cost        int    `yaml:"xp_cost" json:"xpCost"`
	PreUnlocked bool   `yaml:"pre_unlocked,omitempty" json:"preUnlocked,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.Parent == ""
}

// State is the per-user view of a node.
type State string

const (
	StateLocked     State = "locked"
	StateAccessible State = "accessible"
	StateUnlocked   State = "unlocked"
)

// LockReason explains a StateLocked result.
type LockReason string

const (
	LockNone   LockReason = ""
	LockParent LockReason = "parent"
	LockXP     LockReason = "xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// FOREST
// ══════════════════════════════════════════════════════════════════════════════

// Forest is the validated set of nodes.
type Forest struct {
	nodes []Node
	byID  map[string]Node
}

// NewForest validates nodes: unique non-empty ids, non-negative costs, known
// parents, no cycles, and PreUnlocked only on roots.
func NewForest(nodes []Node) (*Forest, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("skill node with empty id")
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("duplicate skill node %q", n.ID)
		}
		if n.Cost < 0 {
			return nil, fmt.Errorf("skill node %q has negative cost", n.ID)
		}
		if n.PreUnlocked && !n.IsRoot() {
			return nil, fmt.Errorf("skill node %q is pre-unlocked but has a parent", n.ID)
		}
		byID[n.ID] = n
	}

	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		if _, ok := byID[n.Parent]; !ok {
			return nil, fmt.Errorf("skill node %q has unknown parent %q", n.ID, n.Parent)
		}
		// Walk up; a chain longer than the forest means a cycle.
		cur, steps := n, 0
		for !cur.IsRoot() {
			cur = byID[cur.Parent]
			steps++
			if steps > len(nodes) {
				return nil, fmt.Errorf("skill node %q is part of a cycle", n.ID)
			}
		}
	}

	cp := make([]Node, len(nodes))
	copy(cp, nodes)
	return &Forest{nodes: cp, byID: byID}, nil
}

// Node looks up a node by id.
func (f *Forest) Node(id string) (Node, error) {
	n, ok := f.byID[id]
	if !ok {
		return Node{}, shared.ErrSkillNotFound
	}
	return n, nil
}

// Nodes returns all nodes in definition order.
func (f *Forest) Nodes() []Node {
	cp := make([]Node, len(f.nodes))
	copy(cp, f.nodes)
	return cp
}

// Categories returns the distinct categories in definition order.
func (f *Forest) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range f.nodes {
		if !seen[n.Category] {
			seen[n.Category] = true
			out = append(out, n.Category)
		}
	}
	return out
}

// Owned merges the persisted ownership set with the pre-unlocked roots.
func (f *Forest) Owned(persisted []string) map[string]bool {
	owned := make(map[string]bool, len(persisted)+len(f.nodes))
	for _, id := range persisted {
		owned[id] = true
	}
	for _, n := range f.nodes {
		if n.PreUnlocked {
			owned[n.ID] = true
		}
	}
	return owned
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE & UNLOCK RULES
// ══════════════════════════════════════════════════════════════════════════════

// StateOf computes a node's state for a user. owned must already include the
// pre-unlocked roots (see Forest.Owned).
func StateOf(n Node, owned map[string]bool, availableXP int) (State, LockReason) {
	if owned[n.ID] {
		return StateUnlocked, LockNone
	}
	if n.IsRoot() || owned[n.Parent] {
		if availableXP >= n.Cost {
			return StateAccessible, LockNone
		}
		return StateLocked, LockXP
	}
	return StateLocked, LockParent
}

// CheckUnlock returns nil when n can be purchased, or the rejection.
func CheckUnlock(n Node, owned map[string]bool, availableXP int) error {
	state, reason := StateOf(n, owned, availableXP)
	switch state {
	case StateUnlocked:
		return shared.ErrSkillAlreadyUnlocked
	case StateAccessible:
		return nil
	}
	if reason == LockParent {
		return shared.ErrSkillPrerequisite
	}
	return shared.ErrSkillInsufficientXP
}

// NodeView is a node with its computed state.
type NodeView struct {
	Node
	State State `json:"state"`
}

// Views computes the state of every node, in definition order.
func (f *Forest) Views(owned map[string]bool, availableXP int) []NodeView {
	out := make([]NodeView, 0, len(f.nodes))
	for _, n := range f.nodes {
		s, _ := StateOf(n, owned, availableXP)
		out = append(out, NodeView{Node: n, State: s})
	}
	return out
}

// SortedIDs returns the keys of owned in lexical order.
func SortedIDs(owned map[string]bool) []string {
	out := make([]string, 0, len(owned))
	for id, ok := range owned {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
