// Package memstore is an in-process simulated remote account.
//
// Nodes live in a handle-indexed registry; every mutating or session call
// completes asynchronously on its own goroutine and reports through a
// provider.RequestListener, like a networked store would. The Request and
// Error passed to a listener are scrubbed once the callback returns.
package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
	"github.com/cloudfs/cloudsh/internal/util"
)

// BackendName is the registry name of this backend.
const BackendName = "memory"

var sessionNamespace = uuid.MustParse("6f1c2b8e-4a3d-5e7f-9a0b-1c2d3e4f5a6b")

type record struct {
	node      model.Node
	children  []model.Handle
	outShares []model.Share
	pending   []model.Share
	// owner and access are set on inbound share roots only.
	owner  string
	access model.AccessLevel
}

// Store implements provider.NodeStore in memory.
type Store struct {
	mu    sync.RWMutex
	nodes *xsync.Map[model.Handle, *record]

	lastHandle atomic.Uint64

	email    string
	password string
	root     model.Handle
	inbox    model.Handle
	rubbish  model.Handle
	inshares []model.Handle

	loggedIn bool
	fetched  bool
	session  string
	revoked  map[string]struct{}

	contacts []model.User
	inPCRs   []model.ContactRequest
	outPCRs  []model.ContactRequest

	listeners []provider.GlobalListener

	latency  time.Duration
	fault    FaultFunc
	failNext map[provider.RequestType][]provider.ErrorCode
	issued   []provider.Request
	inflight sync.WaitGroup

	logger zerolog.Logger
}

// New creates a store populated from fx. A nil fixture yields DefaultFixture.
func New(fx *Fixture) (*Store, error) {
	if fx == nil {
		fx = DefaultFixture()
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		nodes:    xsync.NewMap[model.Handle, *record](),
		email:    fx.Email,
		password: fx.Password,
		revoked:  make(map[string]struct{}),
		failNext: make(map[provider.RequestType][]provider.ErrorCode),
		logger:   util.GetLogger("memstore"),
	}

	now := time.Now()
	s.root = s.addTop(model.NodeTypeRoot, "Cloud Drive", now)
	s.inbox = s.addTop(model.NodeTypeInbox, "Inbox", now)
	s.rubbish = s.addTop(model.NodeTypeRubbish, "Rubbish Bin", now)
	s.build(s.root, fx.Root, now)
	s.build(s.inbox, fx.Inbox, now)
	s.build(s.rubbish, fx.Rubbish, now)

	for _, in := range fx.InShares {
		access, _ := model.ParseAccessLevel(in.Access)
		h := s.addTop(model.NodeTypeFolder, in.Name, now)
		r, _ := s.nodes.Load(h)
		r.node.IsInShare = true
		r.owner = in.Owner
		r.access = access
		s.inshares = append(s.inshares, h)
		s.build(h, in.Children, now)
	}

	for _, c := range fx.Contacts {
		s.contacts = append(s.contacts, model.User{Email: c.Email, Visibility: parseVisibility(c.Visibility)})
	}
	for _, p := range fx.PCRs.Incoming {
		s.inPCRs = append(s.inPCRs, model.ContactRequest{
			ID: s.nextHandle(), SourceEmail: p.Email, TargetEmail: s.email, Message: p.Message, CreatedAt: now,
		})
	}
	for _, p := range fx.PCRs.Outgoing {
		s.outPCRs = append(s.outPCRs, model.ContactRequest{
			ID: s.nextHandle(), SourceEmail: s.email, TargetEmail: p.Email, Message: p.Message, Outgoing: true, CreatedAt: now,
		})
	}

	return s, nil
}

// Factory opens a Store for the backend registry.
// Recognised options: "fixture" (YAML path) and "latency" (time.Duration).
func Factory(opts map[string]interface{}) (provider.NodeStore, error) {
	fx := DefaultFixture()
	if path, ok := opts["fixture"].(string); ok && path != "" {
		loaded, err := LoadFixture(path)
		if err != nil {
			return nil, err
		}
		fx = loaded
	}
	s, err := New(fx)
	if err != nil {
		return nil, err
	}
	if d, ok := opts["latency"].(time.Duration); ok {
		s.SetLatency(d)
	}
	return s, nil
}

func (s *Store) nextHandle() model.Handle {
	return model.Handle(s.lastHandle.Add(1))
}

func (s *Store) addTop(t model.NodeType, name string, now time.Time) model.Handle {
	h := s.nextHandle()
	s.nodes.Store(h, &record{node: model.Node{
		Handle:       h,
		ParentHandle: model.UNDEF,
		Type:         t,
		Name:         name,
		CreatedAt:    now,
		ModifiedAt:   now,
		PublicHandle: model.UNDEF,
	}})
	return h
}

func (s *Store) build(parent model.Handle, specs []NodeSpec, now time.Time) {
	pr, _ := s.nodes.Load(parent)
	for _, spec := range specs {
		h := s.nextHandle()
		r := &record{node: model.Node{
			Handle:       h,
			ParentHandle: parent,
			Type:         spec.kind(),
			Name:         spec.Name,
			Size:         spec.Size,
			CreatedAt:    now,
			ModifiedAt:   now,
			PublicHandle: model.UNDEF,
		}}
		switch spec.Export {
		case "permanent":
			r.node.PublicHandle = s.nextHandle()
		case "temporal":
			r.node.PublicHandle = s.nextHandle()
			r.node.ExpirationTime = now.Add(7 * 24 * time.Hour).Unix()
		}
		for _, sh := range spec.Shares {
			access, _ := model.ParseAccessLevel(sh.Access)
			r.outShares = append(r.outShares, model.Share{NodeHandle: h, User: sh.User, Access: access, CreatedAt: now})
		}
		for _, sh := range spec.Pending {
			access, _ := model.ParseAccessLevel(sh.Access)
			r.pending = append(r.pending, model.Share{NodeHandle: h, User: sh.User, Access: access, CreatedAt: now, Pending: true})
		}
		s.nodes.Store(h, r)
		pr.children = append(pr.children, h)
		if r.node.Type == model.NodeTypeFolder {
			s.build(h, spec.Children, now)
		}
	}
}

// Type returns the backend name.
func (s *Store) Type() string {
	return BackendName
}

// --- fault and latency injection ---

// FaultFunc decides the outcome of a request before it is applied.
// Returning provider.OK lets the request proceed normally.
type FaultFunc func(req provider.Request) provider.ErrorCode

// SetLatency delays every completion by d.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SetFault installs f, or clears it when f is nil.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// FailNext makes the next request of type t finish with code without being applied.
// Calls queue up in order.
func (s *Store) FailNext(t provider.RequestType, code provider.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[t] = append(s.failNext[t], code)
}

// Issued returns every request submitted so far, in submission order.
func (s *Store) Issued() []provider.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]provider.Request, len(s.issued))
	copy(out, s.issued)
	return out
}

// IssuedOf returns the submitted requests of type t.
func (s *Store) IssuedOf(t provider.RequestType) []provider.Request {
	var out []provider.Request
	for _, r := range s.Issued() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Wait blocks until every in-flight request has completed.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// submit records req and completes it asynchronously.
// apply runs under the write lock and returns the outcome plus changed nodes.
func (s *Store) submit(req *provider.Request, l provider.RequestListener, apply func(req *provider.Request) (provider.ErrorCode, []model.Node)) {
	req.Tag = uuid.NewString()

	s.mu.Lock()
	s.issued = append(s.issued, *req)
	latency := s.latency
	s.mu.Unlock()

	s.logger.Trace().Str("tag", req.Tag).Str("type", req.Type.String()).Msg("request submitted")

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if latency > 0 {
			time.Sleep(latency)
		}

		code, changed := s.complete(req, apply)
		e := provider.NewError(code)

		if len(changed) > 0 {
			s.notify(changed)
		}

		s.logger.Debug().Str("tag", req.Tag).Str("type", req.Type.String()).Int("code", int(code)).Msg("request finished")
		if l != nil {
			l.OnRequestFinish(req, e)
		}

		// The callback's view is only valid while it runs.
		*req = provider.Request{Tag: "", NodeHandle: model.UNDEF, ParentHandle: model.UNDEF}
		*e = provider.Error{Code: provider.EINTERNAL, Message: "request released"}
	}()
}

func (s *Store) complete(req *provider.Request, apply func(req *provider.Request) (provider.ErrorCode, []model.Node)) (provider.ErrorCode, []model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if queued := s.failNext[req.Type]; len(queued) > 0 {
		s.failNext[req.Type] = queued[1:]
		return queued[0], nil
	}
	if s.fault != nil {
		if code := s.fault(*req); code != provider.OK {
			return code, nil
		}
	}
	return apply(req)
}

// --- global listeners ---

// AddGlobalListener registers l for node updates.
func (s *Store) AddGlobalListener(l provider.GlobalListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveGlobalListener unregisters l.
func (s *Store) RemoveGlobalListener(l provider.GlobalListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.listeners {
		if x == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(nodes []model.Node) {
	s.mu.RLock()
	listeners := append([]provider.GlobalListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.OnNodesUpdate(nodes)
	}
}

// --- read side ---

// live returns the record for h when the account is fetched. Caller holds mu.
func (s *Store) live(h model.Handle) *record {
	if !s.fetched || h == model.UNDEF {
		return nil
	}
	r, ok := s.nodes.Load(h)
	if !ok {
		return nil
	}
	return r
}

func snapshot(r *record) *model.Node {
	if r == nil {
		return nil
	}
	n := r.node
	return &n
}

func handleOf(n *model.Node) model.Handle {
	if n == nil {
		return model.UNDEF
	}
	return n.Handle
}

// GetNodeByHandle returns a snapshot of the node, or nil.
func (s *Store) GetNodeByHandle(h model.Handle) *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.live(h))
}

// GetChildNode returns the first child of parent named name.
func (s *Store) GetChildNode(parent *model.Node, name string) *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr := s.live(handleOf(parent))
	if pr == nil {
		return nil
	}
	for _, ch := range pr.children {
		if r := s.live(ch); r != nil && r.node.Name == name {
			return snapshot(r)
		}
	}
	return nil
}

// GetParentNode returns the current parent of n.
func (s *Store) GetParentNode(n *model.Node) *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.live(handleOf(n))
	if r == nil {
		return nil
	}
	return snapshot(s.live(r.node.ParentHandle))
}

// GetChildren returns the children of n in insertion order.
func (s *Store) GetChildren(n *model.Node) []*model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.live(handleOf(n))
	if r == nil || r.node.Type == model.NodeTypeFile {
		return nil
	}
	out := make([]*model.Node, 0, len(r.children))
	for _, ch := range r.children {
		if cr := s.live(ch); cr != nil {
			out = append(out, snapshot(cr))
		}
	}
	return out
}

func (s *Store) GetRootNode() *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.live(s.root))
}

func (s *Store) GetInboxNode() *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.live(s.inbox))
}

func (s *Store) GetRubbishNode() *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.live(s.rubbish))
}

// GetOutShares returns the established outgoing shares of n, or nil.
func (s *Store) GetOutShares(n *model.Node) []model.Share {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.live(handleOf(n))
	if r == nil || len(r.outShares) == 0 {
		return nil
	}
	return append([]model.Share(nil), r.outShares...)
}

// GetPendingOutShares returns the pending outgoing shares of n, or nil.
func (s *Store) GetPendingOutShares(n *model.Node) []model.Share {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.live(handleOf(n))
	if r == nil || len(r.pending) == 0 {
		return nil
	}
	return append([]model.Share(nil), r.pending...)
}

// GetAllOutShares returns every outgoing share, pending ones included, ordered by node handle.
func (s *Store) GetAllOutShares() []model.Share {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fetched {
		return nil
	}
	var out []model.Share
	s.nodes.Range(func(_ model.Handle, r *record) bool {
		out = append(out, r.outShares...)
		out = append(out, r.pending...)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].NodeHandle < out[j].NodeHandle })
	return out
}

// GetInSharesList returns one entry per inbound share root; User is the owner.
func (s *Store) GetInSharesList() []model.Share {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Share
	for _, h := range s.inshares {
		if r := s.live(h); r != nil {
			out = append(out, model.Share{NodeHandle: h, User: r.owner, Access: r.access, CreatedAt: r.node.CreatedAt})
		}
	}
	return out
}

// GetInShares returns the inbound share roots owned by user.
func (s *Store) GetInShares(user string) []*model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Node
	for _, h := range s.inshares {
		if r := s.live(h); r != nil && strings.EqualFold(r.owner, user) {
			out = append(out, snapshot(r))
		}
	}
	return out
}

// GetAccess returns the caller's access level on n.
func (s *Store) GetAccess(n *model.Node) model.AccessLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessOf(handleOf(n))
}

// accessOf walks to the top of n's tree. Caller holds mu.
func (s *Store) accessOf(h model.Handle) model.AccessLevel {
	top := s.topOf(h)
	if top == nil {
		return model.AccessUnknown
	}
	if top.node.IsInShare {
		return top.access
	}
	return model.AccessOwner
}

func (s *Store) topOf(h model.Handle) *record {
	r := s.live(h)
	for r != nil && r.node.ParentHandle != model.UNDEF {
		p := s.live(r.node.ParentHandle)
		if p == nil {
			return nil
		}
		r = p
	}
	return r
}

func (s *Store) isAncestor(anc, h model.Handle) bool {
	for r := s.live(h); r != nil; r = s.live(r.node.ParentHandle) {
		if r.node.Handle == anc {
			return true
		}
	}
	return false
}

// GetContacts returns the account's contacts with their shared-folder counts.
func (s *Store) GetContacts() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.contacts))
	for _, c := range s.contacts {
		c.SharingCount = s.sharingCount(c.Email)
		out = append(out, c)
	}
	return out
}

// GetContact returns the contact with email, or nil.
func (s *Store) GetContact(email string) *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if strings.EqualFold(c.Email, email) {
			c.SharingCount = s.sharingCount(c.Email)
			return &c
		}
	}
	return nil
}

func (s *Store) sharingCount(email string) int {
	n := 0
	for _, h := range s.inshares {
		if r, ok := s.nodes.Load(h); ok && strings.EqualFold(r.owner, email) {
			n++
		}
	}
	return n
}

func (s *Store) GetIncomingContactRequests() []model.ContactRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ContactRequest(nil), s.inPCRs...)
}

func (s *Store) GetOutgoingContactRequests() []model.ContactRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ContactRequest(nil), s.outPCRs...)
}

// IsLoggedIn reports whether a session is active.
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// DumpSession returns the active session token.
func (s *Store) DumpSession() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loggedIn {
		return ""
	}
	return s.session
}

// MyEmail returns the account e-mail while logged in.
func (s *Store) MyEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loggedIn {
		return ""
	}
	return s.email
}

// sessionFor derives the resumable token for the fixture credentials.
// Tokens stay valid across processes that load the same fixture.
func (s *Store) sessionFor() string {
	return uuid.NewSHA1(sessionNamespace, []byte(strings.ToLower(s.email)+"\x00"+s.password)).String()
}

func (s *Store) String() string {
	return fmt.Sprintf("memstore(%s, %d nodes)", s.email, s.nodes.Size())
}
