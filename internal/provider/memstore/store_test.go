package memstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

const testFixture = `
email: alice@example.com
password: hunter2
contacts:
  - email: bob@example.com
  - email: carol@example.com
    visibility: hidden
root:
  - name: docs
    shares:
      - {user: bob@example.com, access: rw}
    children:
      - name: report.txt
        size: 42
        export: temporal
  - name: empty
    type: folder
  - name: a.txt
    size: 7
inshares:
  - owner: bob@example.com
    access: r
    name: bobfiles
    children:
      - name: notes.txt
        size: 3
  - owner: bob@example.com
    access: full
    name: scratch
    children: []
pcrs:
  incoming:
    - {email: dave@example.com, message: hi}
`

type result struct {
	req provider.Request
	err provider.Error
}

func call(t *testing.T, issue func(l provider.RequestListener)) result {
	t.Helper()
	done := make(chan result, 1)
	issue(provider.RequestListenerFunc(func(req *provider.Request, err *provider.Error) {
		done <- result{req: *req.Copy(), err: *err.Copy()}
	}))
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("request never completed")
		return result{}
	}
}

func newLoggedIn(t *testing.T) *Store {
	t.Helper()
	fx, err := ParseFixture([]byte(testFixture))
	require.NoError(t, err)
	s, err := New(fx)
	require.NoError(t, err)

	r := call(t, func(l provider.RequestListener) { s.Login("alice@example.com", "hunter2", l) })
	require.Equal(t, provider.OK, r.err.Code)
	r = call(t, func(l provider.RequestListener) { s.FetchNodes(l) })
	require.Equal(t, provider.OK, r.err.Code)
	return s
}

func child(t *testing.T, s *Store, parent *model.Node, name string) *model.Node {
	t.Helper()
	n := s.GetChildNode(parent, name)
	require.NotNil(t, n, "child %q", name)
	return n
}

func TestNodesInvisibleUntilFetched(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, s.GetRootNode())

	r := call(t, func(l provider.RequestListener) { s.FetchNodes(l) })
	assert.Equal(t, provider.EACCESS, r.err.Code)

	r = call(t, func(l provider.RequestListener) { s.Login("user@example.com", "password", l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.NotEmpty(t, r.req.SessionKey)
	assert.Nil(t, s.GetRootNode())

	call(t, func(l provider.RequestListener) { s.FetchNodes(l) })
	root := s.GetRootNode()
	require.NotNil(t, root)
	assert.Equal(t, model.NodeTypeRoot, root.Type)
	assert.Equal(t, model.UNDEF, root.ParentHandle)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	r := call(t, func(l provider.RequestListener) { s.Login("user@example.com", "nope", l) })
	assert.Equal(t, provider.ENOENT, r.err.Code)
	assert.Equal(t, "Not found", r.err.Message)
	assert.False(t, s.IsLoggedIn())
}

func TestSessionResumeAndRevoke(t *testing.T) {
	s := newLoggedIn(t)
	token := s.DumpSession()
	require.NotEmpty(t, token)

	r := call(t, func(l provider.RequestListener) { s.LocalLogout(l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.False(t, s.IsLoggedIn())

	r = call(t, func(l provider.RequestListener) { s.FastLogin(token, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Equal(t, "alice@example.com", s.MyEmail())

	r = call(t, func(l provider.RequestListener) { s.Logout(l) })
	require.Equal(t, provider.OK, r.err.Code)

	r = call(t, func(l provider.RequestListener) { s.FastLogin(token, l) })
	assert.Equal(t, provider.ESID, r.err.Code)
}

func TestSessionTokenStableAcrossStores(t *testing.T) {
	a := newLoggedIn(t)
	fx, err := ParseFixture([]byte(testFixture))
	require.NoError(t, err)
	b, err := New(fx)
	require.NoError(t, err)

	r := call(t, func(l provider.RequestListener) { b.FastLogin(a.DumpSession(), l) })
	assert.Equal(t, provider.OK, r.err.Code)
}

func TestFixtureTree(t *testing.T) {
	s := newLoggedIn(t)
	root := s.GetRootNode()

	names := []string{}
	for _, n := range s.GetChildren(root) {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"docs", "empty", "a.txt"}, names)

	docs := child(t, s, root, "docs")
	assert.Equal(t, model.NodeTypeFolder, docs.Type)
	shares := s.GetOutShares(docs)
	require.Len(t, shares, 1)
	assert.Equal(t, model.AccessReadWrite, shares[0].Access)
	assert.Nil(t, s.GetPendingOutShares(docs))

	report := child(t, s, docs, "report.txt")
	assert.True(t, report.IsExported())
	assert.NotZero(t, report.ExpirationTime)
	assert.Equal(t, docs.Handle, s.GetParentNode(report).Handle)
	assert.Nil(t, s.GetChildren(report))

	empty := child(t, s, root, "empty")
	assert.Empty(t, s.GetChildren(empty))
	assert.Nil(t, s.GetOutShares(empty))

	in := s.GetInSharesList()
	require.Len(t, in, 2)
	assert.Equal(t, "bob@example.com", in[0].User)
	assert.Len(t, s.GetInShares("bob@example.com"), 2)

	bob := s.GetContact("bob@example.com")
	require.NotNil(t, bob)
	assert.Equal(t, 2, bob.SharingCount)
	assert.Len(t, s.GetIncomingContactRequests(), 1)
}

func TestMoveAndRename(t *testing.T) {
	s := newLoggedIn(t)
	root := s.GetRootNode()
	a := child(t, s, root, "a.txt")
	empty := child(t, s, root, "empty")

	r := call(t, func(l provider.RequestListener) { s.MoveNode(a, empty, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Equal(t, empty.Handle, r.req.ParentHandle)
	assert.Nil(t, s.GetChildNode(root, "a.txt"))
	assert.Equal(t, empty.Handle, s.GetNodeByHandle(a.Handle).ParentHandle)

	r = call(t, func(l provider.RequestListener) { s.RenameNode(a, "b.txt", l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Equal(t, "b.txt", s.GetNodeByHandle(a.Handle).Name)
}

func TestMoveErrors(t *testing.T) {
	s := newLoggedIn(t)
	root := s.GetRootNode()
	docs := child(t, s, root, "docs")
	report := child(t, s, docs, "report.txt")
	a := child(t, s, root, "a.txt")
	bobfiles := s.GetInShares("bob@example.com")[0]

	tests := []struct {
		name string
		n    *model.Node
		dst  *model.Node
		want provider.ErrorCode
	}{
		{"into itself", docs, docs, provider.ECIRCULAR},
		{"namespace root", root, docs, provider.EACCESS},
		{"folder into own child file", docs, report, provider.EARGS},
		{"into read-only inshare", a, bobfiles, provider.EACCESS},
		{"missing source", &model.Node{Handle: 9999}, docs, provider.ENOENT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, func(l provider.RequestListener) { s.MoveNode(tt.n, tt.dst, l) })
			assert.Equal(t, tt.want, r.err.Code)
		})
	}
}

func TestCreateFolderAndRemove(t *testing.T) {
	s := newLoggedIn(t)
	root := s.GetRootNode()

	r := call(t, func(l provider.RequestListener) { s.CreateFolder("new", root, l) })
	require.Equal(t, provider.OK, r.err.Code)
	created := s.GetChildNode(root, "new")
	require.NotNil(t, created)
	assert.Equal(t, r.req.NodeHandle, created.Handle)

	a := child(t, s, root, "a.txt")
	r = call(t, func(l provider.RequestListener) { s.CreateFolder("x", a, l) })
	assert.Equal(t, provider.EARGS, r.err.Code)

	docs := child(t, s, root, "docs")
	report := child(t, s, docs, "report.txt")
	r = call(t, func(l provider.RequestListener) { s.Remove(docs, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Nil(t, s.GetNodeByHandle(docs.Handle))
	assert.Nil(t, s.GetNodeByHandle(report.Handle))

	r = call(t, func(l provider.RequestListener) { s.Remove(root, l) })
	assert.Equal(t, provider.EACCESS, r.err.Code)
}

func TestInShareAccess(t *testing.T) {
	s := newLoggedIn(t)
	shares := s.GetInShares("bob@example.com")
	bobfiles, scratch := shares[0], shares[1]

	notes := child(t, s, bobfiles, "notes.txt")
	assert.Equal(t, model.AccessRead, s.GetAccess(notes))

	r := call(t, func(l provider.RequestListener) { s.RenameNode(notes, "x", l) })
	assert.Equal(t, provider.EACCESS, r.err.Code)
	r = call(t, func(l provider.RequestListener) { s.CreateFolder("x", bobfiles, l) })
	assert.Equal(t, provider.EACCESS, r.err.Code)

	r = call(t, func(l provider.RequestListener) { s.CreateFolder("x", scratch, l) })
	assert.Equal(t, provider.OK, r.err.Code)
	assert.Equal(t, model.AccessOwner, s.GetAccess(s.GetRootNode()))
}

func TestShareCreatesPendingForNonContacts(t *testing.T) {
	s := newLoggedIn(t)
	empty := child(t, s, s.GetRootNode(), "empty")

	r := call(t, func(l provider.RequestListener) { s.Share(empty, "bob@example.com", model.AccessFull, l) })
	require.Equal(t, provider.OK, r.err.Code)
	r = call(t, func(l provider.RequestListener) { s.Share(empty, "zed@example.com", model.AccessRead, l) })
	require.Equal(t, provider.OK, r.err.Code)

	require.Len(t, s.GetOutShares(empty), 1)
	pending := s.GetPendingOutShares(empty)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Pending)
	assert.Len(t, s.GetAllOutShares(), 3)

	r = call(t, func(l provider.RequestListener) { s.Share(empty, "bob@example.com", model.AccessUnknown, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Nil(t, s.GetOutShares(empty))

	r = call(t, func(l provider.RequestListener) { s.Share(empty, "alice@example.com", model.AccessRead, l) })
	assert.Equal(t, provider.EARGS, r.err.Code)
}

func TestInviteContact(t *testing.T) {
	s := newLoggedIn(t)

	r := call(t, func(l provider.RequestListener) { s.InviteContact("erin@example.com", "hello", model.ContactRequestAdd, l) })
	require.Equal(t, provider.OK, r.err.Code)
	require.Len(t, s.GetOutgoingContactRequests(), 1)

	r = call(t, func(l provider.RequestListener) { s.InviteContact("erin@example.com", "", model.ContactRequestAdd, l) })
	assert.Equal(t, provider.EEXIST, r.err.Code)

	r = call(t, func(l provider.RequestListener) { s.InviteContact("erin@example.com", "", model.ContactRequestRemind, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.False(t, s.GetOutgoingContactRequests()[0].LastRemindedAt.IsZero())

	r = call(t, func(l provider.RequestListener) { s.InviteContact("erin@example.com", "", model.ContactRequestDelete, l) })
	require.Equal(t, provider.OK, r.err.Code)
	assert.Empty(t, s.GetOutgoingContactRequests())

	r = call(t, func(l provider.RequestListener) { s.InviteContact("alice@example.com", "", model.ContactRequestAdd, l) })
	assert.Equal(t, provider.EARGS, r.err.Code)
}

func TestFaultInjection(t *testing.T) {
	s := newLoggedIn(t)
	root := s.GetRootNode()
	a := child(t, s, root, "a.txt")
	empty := child(t, s, root, "empty")

	s.FailNext(provider.RequestMove, provider.EACCESS)
	r := call(t, func(l provider.RequestListener) { s.MoveNode(a, empty, l) })
	assert.Equal(t, provider.EACCESS, r.err.Code)
	assert.Equal(t, root.Handle, s.GetNodeByHandle(a.Handle).ParentHandle)

	r = call(t, func(l provider.RequestListener) { s.MoveNode(a, empty, l) })
	assert.Equal(t, provider.OK, r.err.Code)

	s.SetFault(func(req provider.Request) provider.ErrorCode {
		if req.Type == provider.RequestRename {
			return provider.EBLOCKED
		}
		return provider.OK
	})
	r = call(t, func(l provider.RequestListener) { s.RenameNode(a, "z", l) })
	assert.Equal(t, provider.EBLOCKED, r.err.Code)
	assert.Len(t, s.IssuedOf(provider.RequestMove), 2)
}

func TestListenerViewIsScrubbedAfterCallback(t *testing.T) {
	s := newLoggedIn(t)
	var kept *provider.Request
	var keptErr *provider.Error
	done := make(chan struct{})
	s.CreateFolder("tmp", s.GetRootNode(), provider.RequestListenerFunc(func(req *provider.Request, err *provider.Error) {
		kept, keptErr = req, err
		close(done)
	}))
	<-done
	s.Wait()
	assert.Empty(t, kept.Tag)
	assert.Equal(t, provider.EINTERNAL, keptErr.Code)
}

type recorder struct {
	ch chan []model.Node
}

func (r *recorder) OnNodesUpdate(nodes []model.Node) { r.ch <- nodes }

func TestGlobalListenerSeesRemovals(t *testing.T) {
	s := newLoggedIn(t)
	rec := &recorder{ch: make(chan []model.Node, 4)}
	s.AddGlobalListener(rec)

	docs := child(t, s, s.GetRootNode(), "docs")
	call(t, func(l provider.RequestListener) { s.Remove(docs, l) })

	nodes := <-rec.ch
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.True(t, n.IsRemoved)
	}

	s.RemoveGlobalListener(rec)
	call(t, func(l provider.RequestListener) { s.CreateFolder("z", s.GetRootNode(), l) })
	assert.Empty(t, rec.ch)
}

func TestLatency(t *testing.T) {
	s := newLoggedIn(t)
	s.SetLatency(30 * time.Millisecond)
	start := time.Now()
	call(t, func(l provider.RequestListener) { s.CreateFolder("slow", s.GetRootNode(), l) })
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFactoryLoadsFixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o600))

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(BackendName, Factory))
	store, err := reg.Open("", map[string]interface{}{"fixture": path})
	require.NoError(t, err)
	assert.Equal(t, BackendName, store.Type())

	_, err = reg.Open("s3", nil)
	assert.Error(t, err)
}

func TestParseFixtureRejectsBadInput(t *testing.T) {
	_, err := ParseFixture([]byte("root: []"))
	assert.Error(t, err)

	_, err = ParseFixture([]byte("email: a@b\nroot:\n  - name: f\n    type: file\n    children:\n      - name: x\n"))
	assert.Error(t, err)

	_, err = ParseFixture([]byte("email: a@b\nroot:\n  - name: d\n    shares: [{user: b, access: admin}]\n"))
	assert.Error(t, err)
}
