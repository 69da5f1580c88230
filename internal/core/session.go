package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
	"github.com/cloudfs/cloudsh/internal/util"
)

// RenameMode selects when the replace branch of Move renames the moved node.
type RenameMode int

const (
	// RenameWhenDiffers renames when the moved node's name differs from the replaced file's.
	RenameWhenDiffers RenameMode = iota
	// RenameWhenEqual renames only when the names already match, as older
	// shells did. Kept for compatibility; it leaves a differently named node unrenamed.
	RenameWhenEqual
)

// ParseRenameMode accepts "differs" (default) or "legacy".
func ParseRenameMode(s string) (RenameMode, error) {
	switch strings.ToLower(s) {
	case "", "differs":
		return RenameWhenDiffers, nil
	case "legacy":
		return RenameWhenEqual, nil
	}
	return RenameWhenDiffers, fmt.Errorf("unknown replace_rename mode %q (want differs or legacy)", s)
}

// Options configures a Session.
type Options struct {
	// OpTimeout bounds each awaited mutation; zero waits indefinitely.
	OpTimeout time.Duration
	// LoginTimeout bounds login, logout and node fetches; zero waits indefinitely.
	LoginTimeout time.Duration
	RenameMode   RenameMode
}

// Session groups the per-shell mutable state: working directory, cached
// root and session token. Only the command loop mutates it, one command at a time.
type Session struct {
	store    provider.NodeStore
	resolver *Resolver
	state    *StateDB
	opts     Options

	cwd   model.Handle
	root  model.Handle
	token string

	logger zerolog.Logger
}

// NewSession creates a logged-out session over store. state may be nil.
func NewSession(store provider.NodeStore, state *StateDB, opts Options) *Session {
	s := &Session{
		store:    store,
		resolver: NewResolver(store),
		state:    state,
		opts:     opts,
		cwd:      model.UNDEF,
		root:     model.UNDEF,
		logger:   util.GetLogger("session"),
	}
	store.AddGlobalListener(s)
	return s
}

// Close detaches the session from the store.
func (s *Session) Close() {
	s.store.RemoveGlobalListener(s)
}

func (s *Session) Store() provider.NodeStore { return s.store }
func (s *Session) Resolver() *Resolver { return s.resolver }
func (s *Session) State() *StateDB { return s.state }
func (s *Session) Cwd() model.Handle { return s.cwd }
func (s *Session) Root() model.Handle { return s.root }
func (s *Session) Token() string { return s.token }
func (s *Session) Options() Options { return s.opts }

// IsLoggedIn reports whether the store has an active session.
func (s *Session) IsLoggedIn() bool {
	return s.store.IsLoggedIn()
}

// CwdNode returns the working directory node, or nil when it is gone.
func (s *Session) CwdNode() *model.Node {
	return s.store.GetNodeByHandle(s.cwd)
}

func (s *Session) requireLogin(op string) error {
	if !s.store.IsLoggedIn() {
		return opErr(op, "", ErrNotLoggedIn)
	}
	return nil
}

// Resolve resolves path against the working directory.
func (s *Session) Resolve(path string, opts ...ResolveOption) (Resolved, error) {
	return s.resolver.Resolve(path, s.cwd, opts...)
}

// await issues one request through a fresh adapter and waits for it.
func (s *Session) await(ctx context.Context, timeout time.Duration, op, path string, issue func(l provider.RequestListener)) (Outcome, error) {
	sr := NewSyncRequest()
	issue(sr)
	out, err := sr.Await(ctx, timeout)
	if err != nil {
		return out, err
	}
	if out.TimedOut {
		s.logger.Warn().Str("op", op).Str("path", path).Msg("Operation took too long, it may have failed. No further actions performed")
		return out, opErr(op, path, ErrTimedOut)
	}
	s.logger.Trace().Str("op", op).Str("tag", out.Request.Tag).Int("code", int(out.Error.Code)).Msg("request completed")
	return out, remoteErr(op, path, out.Error)
}

// --- session lifecycle ---

// Login authenticates with e-mail and password, then fetches the node tree.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if s.store.IsLoggedIn() {
		return fmt.Errorf("already logged in, please log out first")
	}
	out, err := s.await(ctx, s.opts.LoginTimeout, "login", email, func(l provider.RequestListener) {
		s.store.Login(email, password, l)
	})
	if err != nil {
		if CodeOf(err) == provider.ENOENT {
			return &OpError{Op: "login", Path: email, Code: provider.ENOENT, Message: "invalid email or password", Err: ErrRemote}
		}
		return err
	}
	s.logger.Info().Str("email", email).Str("tag", out.Request.Tag).Msg("Login complete")
	return s.afterLogin(ctx, model.UNDEF)
}

// FastLogin resumes a session from a token.
func (s *Session) FastLogin(ctx context.Context, token string) error {
	return s.fastLogin(ctx, token, model.UNDEF)
}

func (s *Session) fastLogin(ctx context.Context, token string, cwd model.Handle) error {
	if s.store.IsLoggedIn() {
		return fmt.Errorf("already logged in, please log out first")
	}
	s.logger.Info().Msg("Resuming session...")
	if _, err := s.await(ctx, s.opts.LoginTimeout, "login", "", func(l provider.RequestListener) {
		s.store.FastLogin(token, l)
	}); err != nil {
		return err
	}
	return s.afterLogin(ctx, cwd)
}

// Resume restores the session cached by a previous run, if any.
// It reports false when nothing was cached.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	if s.state == nil {
		return false, nil
	}
	cs, err := s.state.LoadSession(ctx)
	if err != nil || cs == nil {
		return false, err
	}
	if err := s.fastLogin(ctx, cs.Token, cs.Cwd); err != nil {
		if CodeOf(err) == provider.ESID {
			s.logger.Warn().Msg("Cached session is no longer valid, forgetting it")
			_ = s.state.ClearSession(ctx)
		}
		return true, err
	}
	return true, nil
}

func (s *Session) afterLogin(ctx context.Context, cwd model.Handle) error {
	s.token = s.store.DumpSession()
	if err := s.FetchNodes(ctx); err != nil {
		return err
	}
	if cwd != model.UNDEF && s.store.GetNodeByHandle(cwd) != nil {
		s.cwd = cwd
	}
	if s.state != nil {
		if err := s.state.SaveSession(ctx, CachedSession{Email: s.store.MyEmail(), Token: s.token, Cwd: s.cwd}); err != nil {
			s.logger.Warn().Err(err).Msg("Could not cache session")
		}
	}
	return nil
}

// FetchNodes (re)loads the node tree, refreshes the cached root and resets
// the working directory to the root when it is undefined or gone.
func (s *Session) FetchNodes(ctx context.Context) error {
	out, err := s.await(ctx, s.opts.LoginTimeout, "fetchnodes", "", func(l provider.RequestListener) {
		s.store.FetchNodes(l)
	})
	if err != nil {
		return err
	}
	root := s.store.GetRootNode()
	if root == nil {
		return opErr("fetchnodes", "", ErrNotFound)
	}
	s.root = root.Handle
	if s.cwd == model.UNDEF || s.store.GetNodeByHandle(s.cwd) == nil {
		s.cwd = root.Handle
	}
	s.logger.Debug().Int64("nodes", out.Request.Number).Msg("Nodes fetched")
	return nil
}

// Logout ends the session remotely and clears local state.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.requireLogin("logout"); err != nil {
		return err
	}
	if _, err := s.await(ctx, s.opts.LoginTimeout, "logout", "", func(l provider.RequestListener) {
		s.store.Logout(l)
	}); err != nil {
		return err
	}
	s.clear(ctx)
	return nil
}

// LocalLogout drops the session locally; the remote session stays valid.
func (s *Session) LocalLogout(ctx context.Context) error {
	if err := s.requireLogin("locallogout"); err != nil {
		return err
	}
	if _, err := s.await(ctx, s.opts.LoginTimeout, "locallogout", "", func(l provider.RequestListener) {
		s.store.LocalLogout(l)
	}); err != nil {
		return err
	}
	s.clear(ctx)
	return nil
}

func (s *Session) clear(ctx context.Context) {
	s.cwd = model.UNDEF
	s.root = model.UNDEF
	s.token = ""
	if s.state != nil {
		if err := s.state.ClearSession(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Could not clear cached session")
		}
	}
}

// --- navigation ---

// Cd changes the working directory; an empty path means the root.
func (s *Session) Cd(ctx context.Context, path string) error {
	if err := s.requireLogin("cd"); err != nil {
		return err
	}
	if path == "" {
		root := s.store.GetRootNode()
		if root == nil {
			return opErr("cd", "/", ErrNotFound)
		}
		s.setCwd(ctx, root.Handle)
		return nil
	}
	res, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if res.Node == nil {
		return opErr("cd", path, ErrNotFound)
	}
	if res.Node.IsFile() {
		return opErr("cd", path, ErrNotADirectory)
	}
	s.setCwd(ctx, res.Node.Handle)
	return nil
}

func (s *Session) setCwd(ctx context.Context, h model.Handle) {
	s.cwd = h
	if s.state != nil {
		if err := s.state.UpdateCwd(ctx, h); err != nil {
			s.logger.Debug().Err(err).Msg("Could not cache cwd")
		}
	}
}

// Pwd returns the path of the working directory.
func (s *Session) Pwd() (string, error) {
	if err := s.requireLogin("pwd"); err != nil {
		return "", err
	}
	if s.CwdNode() == nil {
		return "", opErr("pwd", "", ErrNotFound)
	}
	return NodePath(s.store, s.cwd), nil
}

// OnNodesUpdate implements provider.GlobalListener.
func (s *Session) OnNodesUpdate(nodes []model.Node) {
	var folders, files, removedFolders, removedFiles int
	for _, n := range nodes {
		switch {
		case n.IsRemoved && n.IsFile():
			removedFiles++
		case n.IsRemoved:
			removedFolders++
		case n.IsFile():
			files++
		default:
			folders++
		}
	}
	logCount := func(count int, what string) {
		if count > 0 {
			s.logger.Info().Msgf("%d %s", count, what)
		}
	}
	logCount(folders, "folders added or updated")
	logCount(files, "files added or updated")
	logCount(removedFolders, "folders removed")
	logCount(removedFiles, "files removed")
}
