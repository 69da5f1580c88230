package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
	"github.com/cloudfs/cloudsh/internal/provider/memstore"
)

const accountFixture = `
email: alice@example.com
password: hunter2
contacts:
  - email: bob@example.com
root:
  - name: a
    children:
      - name: f
        size: 10
      - name: g.txt
        size: 5
  - name: b
    children: []
  - name: c
    children:
      - name: f
        size: 99
  - name: docs
    export: permanent
    shares:
      - {user: bob@example.com, access: rw}
    pending:
      - {user: zed@example.com, access: r}
    children:
      - name: report.txt
        size: 42
        export: temporal
      - name: sub
        children:
          - name: deep.txt
            size: 1
  - name: dup
    children: []
  - name: dup
    type: file
    size: 3
  - name: we/ird
    size: 2
inbox:
  - name: msg.txt
    size: 9
rubbish:
  - name: old
    children: []
inshares:
  - owner: bob@example.com
    access: r
    name: bobfiles
    children:
      - name: notes.txt
        size: 3
`

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	fx, err := memstore.ParseFixture([]byte(accountFixture))
	require.NoError(t, err)
	store, err := memstore.New(fx)
	require.NoError(t, err)
	return store
}

// newTestSession returns a logged-in session whose cwd is the account root.
func newTestSession(t *testing.T, opts Options) (*Session, *memstore.Store) {
	t.Helper()
	store := newStore(t)
	s := loggedIn(t, store, nil, opts)
	return s, store
}

func loggedIn(t *testing.T, store provider.NodeStore, state *StateDB, opts Options) *Session {
	t.Helper()
	s := NewSession(store, state, opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Login(context.Background(), "alice@example.com", "hunter2"))
	return s
}

func mustResolve(t *testing.T, s *Session, path string) *model.Node {
	t.Helper()
	res, err := s.Resolve(path)
	require.NoError(t, err, path)
	require.NotNil(t, res.Node, path)
	return res.Node
}

func issuedNames(store *memstore.Store, rt provider.RequestType) []string {
	var names []string
	for _, r := range store.IssuedOf(rt) {
		names = append(names, r.Name)
	}
	return names
}

// hidingStore makes children with the given name invisible to lookups.
type hidingStore struct {
	provider.NodeStore
	hide string
}

func (h *hidingStore) GetChildNode(parent *model.Node, name string) *model.Node {
	if name == h.hide {
		return nil
	}
	return h.NodeStore.GetChildNode(parent, name)
}

// ownerlessStore hides the inbound share list.
type ownerlessStore struct {
	provider.NodeStore
}

func (ownerlessStore) GetInSharesList() []model.Share { return nil }

// orphanStore loses the node with handle lost and reports children named
// detach as having no parent.
type orphanStore struct {
	provider.NodeStore
	lost   model.Handle
	detach string
}

func (o *orphanStore) GetNodeByHandle(h model.Handle) *model.Node {
	if h == o.lost {
		return nil
	}
	return o.NodeStore.GetNodeByHandle(h)
}

func (o *orphanStore) GetChildNode(parent *model.Node, name string) *model.Node {
	n := o.NodeStore.GetChildNode(parent, name)
	if n == nil || name != o.detach {
		return n
	}
	c := *n
	c.ParentHandle = model.UNDEF
	return &c
}

// ackingStore acknowledges every move without applying it.
type ackingStore struct {
	provider.NodeStore
}

func (ackingStore) MoveNode(n, newParent *model.Node, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestMove, NodeHandle: n.Handle, ParentHandle: newParent.Handle}
	go l.OnRequestFinish(req, provider.NewError(provider.OK))
}
