package memstore

import (
	"strings"
	"time"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

func isNamespaceRoot(r *record) bool {
	switch r.node.Type {
	case model.NodeTypeRoot, model.NodeTypeInbox, model.NodeTypeRubbish:
		return true
	}
	return false
}

// --- session requests ---

// Login starts a session with e-mail and password.
func (s *Store) Login(email, password string, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestLogin, Email: email, NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if !strings.EqualFold(email, s.email) || password != s.password {
			return provider.ENOENT, nil
		}
		s.session = s.sessionFor()
		delete(s.revoked, s.session)
		s.loggedIn = true
		req.SessionKey = s.session
		return provider.OK, nil
	})
}

// FastLogin resumes a session from a token returned by DumpSession.
func (s *Store) FastLogin(session string, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestFastLogin, SessionKey: session, NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if _, gone := s.revoked[session]; gone || session != s.sessionFor() {
			return provider.ESID, nil
		}
		s.session = session
		s.loggedIn = true
		req.Email = s.email
		return provider.OK, nil
	})
}

// Logout ends the session remotely; the token can no longer be resumed.
func (s *Store) Logout(l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestLogout, NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if !s.loggedIn {
			return provider.ESID, nil
		}
		s.revoked[s.session] = struct{}{}
		s.dropSession()
		return provider.OK, nil
	})
}

// LocalLogout forgets the session locally; the token stays resumable.
func (s *Store) LocalLogout(l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestLocalLogout, NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if !s.loggedIn {
			return provider.ESID, nil
		}
		s.dropSession()
		return provider.OK, nil
	})
}

func (s *Store) dropSession() {
	s.loggedIn = false
	s.fetched = false
	s.session = ""
}

// FetchNodes loads the node tree; nodes are invisible until it succeeds.
func (s *Store) FetchNodes(l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestFetchNodes, NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if !s.loggedIn {
			return provider.EACCESS, nil
		}
		s.fetched = true
		req.NodeHandle = s.root
		req.Number = int64(s.nodes.Size())
		return provider.OK, nil
	})
}

// --- node requests ---

// MoveNode reparents n under newParent. On success the response's
// ParentHandle is the node's new parent.
func (s *Store) MoveNode(n, newParent *model.Node, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestMove, NodeHandle: handleOf(n), ParentHandle: handleOf(newParent)}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		r := s.live(req.NodeHandle)
		dst := s.live(req.ParentHandle)
		if r == nil || dst == nil {
			return provider.ENOENT, nil
		}
		if dst.node.Type == model.NodeTypeFile {
			return provider.EARGS, nil
		}
		if isNamespaceRoot(r) || r.node.IsInShare {
			return provider.EACCESS, nil
		}
		if s.isAncestor(r.node.Handle, dst.node.Handle) {
			return provider.ECIRCULAR, nil
		}
		if s.topOf(r.node.Handle) != s.topOf(dst.node.Handle) && (s.accessOf(r.node.Handle) != model.AccessOwner || s.accessOf(dst.node.Handle) != model.AccessOwner) {
			return provider.EACCESS, nil
		}
		if s.accessOf(r.node.Handle) < model.AccessFull || s.accessOf(dst.node.Handle) < model.AccessReadWrite {
			return provider.EACCESS, nil
		}

		if old := s.live(r.node.ParentHandle); old != nil {
			old.children = without(old.children, r.node.Handle)
		}
		dst.children = append(dst.children, r.node.Handle)
		r.node.ParentHandle = dst.node.Handle
		r.node.ModifiedAt = time.Now()
		req.ParentHandle = dst.node.Handle
		return provider.OK, []model.Node{r.node}
	})
}

// RenameNode changes the name of n.
func (s *Store) RenameNode(n *model.Node, newName string, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestRename, NodeHandle: handleOf(n), ParentHandle: model.UNDEF, Name: newName}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		r := s.live(req.NodeHandle)
		if r == nil {
			return provider.ENOENT, nil
		}
		if newName == "" {
			return provider.EARGS, nil
		}
		if isNamespaceRoot(r) || s.accessOf(r.node.Handle) < model.AccessFull {
			return provider.EACCESS, nil
		}
		r.node.Name = newName
		r.node.ModifiedAt = time.Now()
		req.ParentHandle = r.node.ParentHandle
		return provider.OK, []model.Node{r.node}
	})
}

// Remove deletes n and its subtree. Removing an inbound share root leaves the share.
func (s *Store) Remove(n *model.Node, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestRemove, NodeHandle: handleOf(n), ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		r := s.live(req.NodeHandle)
		if r == nil {
			return provider.ENOENT, nil
		}
		if isNamespaceRoot(r) {
			return provider.EACCESS, nil
		}
		if !r.node.IsInShare && s.accessOf(r.node.Handle) < model.AccessFull {
			return provider.EACCESS, nil
		}
		if r.node.IsInShare {
			s.inshares = without(s.inshares, r.node.Handle)
		}
		if p := s.live(r.node.ParentHandle); p != nil {
			p.children = without(p.children, r.node.Handle)
		}
		req.ParentHandle = r.node.ParentHandle
		return provider.OK, s.unregister(r)
	})
}

// unregister drops r and its subtree from the registry, returning removed snapshots.
func (s *Store) unregister(r *record) []model.Node {
	var removed []model.Node
	for _, ch := range r.children {
		if cr, ok := s.nodes.Load(ch); ok {
			removed = append(removed, s.unregister(cr)...)
		}
	}
	s.nodes.Delete(r.node.Handle)
	gone := r.node
	gone.IsRemoved = true
	return append(removed, gone)
}

// CreateFolder creates a folder named name under parent.
// The response's NodeHandle is the new folder.
func (s *Store) CreateFolder(name string, parent *model.Node, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestCreateFolder, Name: name, NodeHandle: model.UNDEF, ParentHandle: handleOf(parent)}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		pr := s.live(req.ParentHandle)
		if pr == nil {
			return provider.ENOENT, nil
		}
		if name == "" || pr.node.Type == model.NodeTypeFile {
			return provider.EARGS, nil
		}
		if s.accessOf(pr.node.Handle) < model.AccessReadWrite {
			return provider.EACCESS, nil
		}
		now := time.Now()
		h := s.nextHandle()
		r := &record{node: model.Node{
			Handle:       h,
			ParentHandle: pr.node.Handle,
			Type:         model.NodeTypeFolder,
			Name:         name,
			CreatedAt:    now,
			ModifiedAt:   now,
			PublicHandle: model.UNDEF,
		}}
		s.nodes.Store(h, r)
		pr.children = append(pr.children, h)
		req.NodeHandle = h
		return provider.OK, []model.Node{r.node}
	})
}

// Share grants or changes access for email on folder n; AccessUnknown revokes it.
// Sharing with a non-contact creates a pending share.
func (s *Store) Share(n *model.Node, email string, access model.AccessLevel, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestShare, NodeHandle: handleOf(n), ParentHandle: model.UNDEF, Email: email, Access: access}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		r := s.live(req.NodeHandle)
		if r == nil {
			return provider.ENOENT, nil
		}
		if r.node.Type != model.NodeTypeFolder || email == "" || strings.EqualFold(email, s.email) {
			return provider.EARGS, nil
		}
		if s.accessOf(r.node.Handle) != model.AccessOwner {
			return provider.EACCESS, nil
		}

		if access == model.AccessUnknown {
			before := len(r.outShares) + len(r.pending)
			r.outShares = withoutShare(r.outShares, email)
			r.pending = withoutShare(r.pending, email)
			if len(r.outShares)+len(r.pending) == before {
				return provider.ENOENT, nil
			}
			return provider.OK, []model.Node{r.node}
		}

		share := model.Share{NodeHandle: r.node.Handle, User: email, Access: access, CreatedAt: time.Now()}
		if c := s.contact(email); c != nil && c.Visibility == model.VisibilityVisible {
			r.outShares = upsertShare(r.outShares, share)
		} else {
			share.Pending = true
			r.pending = upsertShare(r.pending, share)
		}
		return provider.OK, []model.Node{r.node}
	})
}

func (s *Store) contact(email string) *model.User {
	for i := range s.contacts {
		if strings.EqualFold(s.contacts[i].Email, email) {
			return &s.contacts[i]
		}
	}
	return nil
}

// InviteContact adds, deletes or reminds an outgoing contact request.
func (s *Store) InviteContact(email, message string, action model.ContactRequestAction, l provider.RequestListener) {
	req := &provider.Request{Type: provider.RequestInviteContact, Email: email, Name: message, Number: int64(action), NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
	s.submit(req, l, func(req *provider.Request) (provider.ErrorCode, []model.Node) {
		if !s.loggedIn {
			return provider.EACCESS, nil
		}
		if email == "" || strings.EqualFold(email, s.email) {
			return provider.EARGS, nil
		}
		idx := -1
		for i, p := range s.outPCRs {
			if strings.EqualFold(p.TargetEmail, email) {
				idx = i
				break
			}
		}
		now := time.Now()
		switch action {
		case model.ContactRequestAdd:
			if c := s.contact(email); (c != nil && c.Visibility == model.VisibilityVisible) || idx >= 0 {
				return provider.EEXIST, nil
			}
			pcr := model.ContactRequest{ID: s.nextHandle(), SourceEmail: s.email, TargetEmail: email, Message: message, Outgoing: true, CreatedAt: now}
			s.outPCRs = append(s.outPCRs, pcr)
			req.NodeHandle = pcr.ID
		case model.ContactRequestDelete:
			if idx < 0 {
				return provider.ENOENT, nil
			}
			s.outPCRs = append(s.outPCRs[:idx], s.outPCRs[idx+1:]...)
		case model.ContactRequestRemind:
			if idx < 0 {
				return provider.ENOENT, nil
			}
			s.outPCRs[idx].LastRemindedAt = now
		default:
			return provider.EARGS, nil
		}
		return provider.OK, nil
	})
}

func without(hs []model.Handle, h model.Handle) []model.Handle {
	out := hs[:0]
	for _, x := range hs {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

func withoutShare(shares []model.Share, email string) []model.Share {
	var out []model.Share
	for _, sh := range shares {
		if !strings.EqualFold(sh.User, email) {
			out = append(out, sh)
		}
	}
	return out
}

func upsertShare(shares []model.Share, share model.Share) []model.Share {
	for i := range shares {
		if strings.EqualFold(shares[i].User, share.User) {
			shares[i].Access = share.Access
			return shares
		}
	}
	return append(shares, share)
}
