package trellis

import "errors"

// StopWalk halts a walk early without surfacing an error to the caller.
var StopWalk = errors.New("stop walk")

// WalkFunc visits one object. path is absolute; kind tells groups and
// datasets apart. Returning StopWalk ends the walk, any other error
// aborts it.
type WalkFunc func(path string, kind Kind) error

// Walk visits the group and every descendant depth-first, children in
// name order.
func (g *Group) Walk(fn WalkFunc) error {
	if err := g.s.check(g.n); err != nil {
		return err
	}
	err := walkNode(g.n, fn)
	if errors.Is(err, StopWalk) {
		return nil
	}
	return err
}

// Walk visits every object in the container starting at the root.
func (s *Session) Walk(fn WalkFunc) error {
	if s.closed {
		return ErrInvalidHandle
	}
	return s.Root().Walk(fn)
}

func walkNode(n *node, fn WalkFunc) error {
	if err := fn(n.path(), n.kind); err != nil {
		return err
	}
	for _, child := range sortedChildren(n) {
		if err := walkNode(child, fn); err != nil {
			return err
		}
	}
	return nil
}
