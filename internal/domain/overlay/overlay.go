// Package overlay applies advisor exceptions on top of a computed
// satisfaction tree. The input tree is never mutated: every application
// returns a patched copy so the stored result and the presented result
// stay distinct values.
package overlay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openregistrar/auditcore/internal/domain/model"
)

// Report summarises one overlay pass: which exceptions landed on a node
// and which referenced a path that no longer exists in the tree.
type Report struct {
	Applied  []string
	Orphaned []string
}

// Apply layers the enabled exceptions onto tree and returns the patched
// copy. Disabled exceptions are skipped. Exceptions whose path does not
// resolve are recorded as orphaned rather than failing the pass, since
// advisor overrides routinely outlive the tree shape they were written
// against.
func Apply(tree model.SatisfactionNode, exceptions []model.Exception) (model.SatisfactionNode, Report, error) {
	out := cloneNode(tree)
	var report Report
	for _, exc := range exceptions {
		if !exc.IsEnabled {
			continue
		}
		node, err := resolve(&out, exc.Path)
		if err != nil {
			report.Orphaned = append(report.Orphaned, exc.ID)
			continue
		}
		if err := patch(node, exc); err != nil {
			return model.SatisfactionNode{}, Report{}, fmt.Errorf("applying exception %s: %w", exc.ID, err)
		}
		report.Applied = append(report.Applied, exc.ID)
	}
	recompute(&out)
	return out, report, nil
}

func patch(node *model.SatisfactionNode, exc model.Exception) error {
	switch exc.Type {
	case model.ExceptionForcedPass:
		node.Satisfied = true
		node.Rank = node.MaxRank
		node.Overridden = true
	case model.ExceptionOverrideCredits:
		if exc.OverrideCredits == nil {
			return fmt.Errorf("override-credits exception carries no credit value")
		}
		v := *exc.OverrideCredits
		node.Credits = &v
		node.Overridden = true
	case model.ExceptionOverrideSubject:
		if exc.OverrideSubject == nil {
			return fmt.Errorf("override-subject exception carries no subject")
		}
		node.Subject = *exc.OverrideSubject
		node.Overridden = true
	case model.ExceptionInsertCourse:
		if exc.CLBID == nil {
			return fmt.Errorf("insert-course exception carries no clbid")
		}
		for _, id := range node.CLBIDs {
			if id == *exc.CLBID {
				return nil
			}
		}
		node.CLBIDs = append(node.CLBIDs, *exc.CLBID)
		node.Overridden = true
	default:
		return fmt.Errorf("unknown exception type %q", exc.Type)
	}
	return nil
}

// resolve walks a path of segments from the root. Supported segments:
//
//	$        the root node (only valid as the first segment)
//	[i]      the i-th child
//	%Name    the first child whose name matches
//	.type    asserts the current node's type without descending
func resolve(root *model.SatisfactionNode, path []string) (*model.SatisfactionNode, error) {
	node := root
	for i, seg := range path {
		switch {
		case seg == "$":
			if i != 0 {
				return nil, fmt.Errorf("segment %q only valid at path start", seg)
			}
		case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
			idx, err := strconv.Atoi(seg[1 : len(seg)-1])
			if err != nil {
				return nil, fmt.Errorf("bad index segment %q", seg)
			}
			if idx < 0 || idx >= len(node.Children) {
				return nil, fmt.Errorf("index %d out of range", idx)
			}
			node = &node.Children[idx]
		case strings.HasPrefix(seg, "%"):
			name := seg[1:]
			var found *model.SatisfactionNode
			for j := range node.Children {
				if node.Children[j].Name == name {
					found = &node.Children[j]
					break
				}
			}
			if found == nil {
				return nil, fmt.Errorf("no child named %q", name)
			}
			node = found
		case strings.HasPrefix(seg, "."):
			if node.Type != seg[1:] {
				return nil, fmt.Errorf("node is %q, path expects %q", node.Type, seg[1:])
			}
		default:
			return nil, fmt.Errorf("unrecognised path segment %q", seg)
		}
	}
	return node, nil
}

// recompute re-derives satisfaction and rank for interior nodes after
// patches land, so a forced-pass deep in the tree propagates upward.
func recompute(node *model.SatisfactionNode) {
	if len(node.Children) == 0 {
		return
	}
	allSatisfied := true
	var rank float64
	for i := range node.Children {
		recompute(&node.Children[i])
		if !node.Children[i].Satisfied {
			allSatisfied = false
		}
		rank += node.Children[i].Rank
	}
	if node.Overridden && node.Satisfied {
		return
	}
	node.Satisfied = allSatisfied
	if rank > node.MaxRank {
		rank = node.MaxRank
	}
	node.Rank = rank
}

func cloneNode(n model.SatisfactionNode) model.SatisfactionNode {
	out := n
	if n.Credits != nil {
		v := *n.Credits
		out.Credits = &v
	}
	if len(n.CLBIDs) > 0 {
		out.CLBIDs = append([]string(nil), n.CLBIDs...)
	}
	if len(n.Children) > 0 {
		out.Children = make([]model.SatisfactionNode, len(n.Children))
		for i := range n.Children {
			out.Children[i] = cloneNode(n.Children[i])
		}
	}
	return out
}
