package core

import (
	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

// Resolved is the result of resolving a path.
//
// Node is the resolved node. With name capture, Node may be the deepest
// existing folder and Name the unmatched final segment. User is set for a
// bare "user:" path, which addresses that user without naming a node.
// Node can be nil without an error when ".." walks above a namespace root.
type Resolved struct {
	Node *model.Node
	Name string
	User string
}

// ResolveOption tunes a single Resolve call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	captureName bool
}

// WithNameCapture lets an unmatched final segment resolve to its parent plus the name.
func WithNameCapture() ResolveOption {
	return func(o *resolveOptions) {
		o.captureName = true
	}
}

// Resolver maps path strings onto the node store. It never mutates the store.
type Resolver struct {
	store provider.NodeStore
}

// NewResolver creates a resolver over store.
func NewResolver(store provider.NodeStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks path starting from cwd, the account root ("/..."), the
// inbox ("//in/...") or the rubbish bin ("//bin/...").
func (r *Resolver) Resolve(path string, cwd model.Handle, opts ...ResolveOption) (Resolved, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	segs, nsSwitch, err := Tokenize(path)
	if err != nil {
		return Resolved{}, err
	}

	if nsSwitch {
		if len(segs) == 2 && segs[1] == "" {
			return Resolved{User: segs[0]}, nil
		}
		// Resolving a share by name under another user is not supported.
		return Resolved{}, opErr("resolve", path, ErrNotFound)
	}

	var n *model.Node
	l := 0
	switch {
	case len(segs) > 1 && segs[0] == "":
		if len(segs) > 2 && segs[1] == "" {
			switch segs[2] {
			case "in":
				n = r.store.GetInboxNode()
			case "bin":
				n = r.store.GetRubbishNode()
			default:
				return Resolved{}, opErr("resolve", path, ErrNotFound)
			}
			l = 3
		} else {
			n = r.store.GetRootNode()
			l = 1
		}
	default:
		n = r.store.GetNodeByHandle(cwd)
	}
	if n == nil || n.IsRemoved {
		return Resolved{}, opErr("resolve", path, ErrNotFound)
	}

	for ; l < len(segs); l++ {
		seg := segs[l]
		switch seg {
		case "", ".":
			continue
		case "..":
			if n != nil {
				n = r.store.GetParentNode(n)
			}
			continue
		}

		if n == nil {
			return Resolved{}, opErr("resolve", path, ErrNotFound)
		}
		child := r.store.GetChildNode(n, seg)
		if child == nil || child.IsRemoved {
			if o.captureName && l == len(segs)-1 {
				return Resolved{Node: n, Name: seg}, nil
			}
			return Resolved{}, opErr("resolve", path, ErrNotFound)
		}
		n = child
	}

	return Resolved{Node: n}, nil
}
