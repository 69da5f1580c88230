package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

// MoveResult reports which steps of a move were applied.
// A failed move can leave Moved set without Renamed.
type MoveResult struct {
	Node     model.Handle
	Moved    bool
	Replaced bool
	Renamed  bool
}

// journalBegin records an operation; journaling problems never block the shell.
func (s *Session) journalBegin(ctx context.Context, opType, payload string) string {
	if s.state == nil {
		return ""
	}
	opID, err := s.state.Journal().BeginOperation(ctx, opType, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("op", opType).Msg("Could not journal operation")
		return ""
	}
	return opID
}

func (s *Session) journalEnd(ctx context.Context, opID string, err error) {
	if s.state == nil || opID == "" {
		return
	}
	var jerr error
	if err != nil {
		jerr = s.state.Journal().RollbackOperation(ctx, opID, err.Error())
	} else {
		jerr = s.state.Journal().CommitOperation(ctx, opID)
	}
	if jerr != nil {
		s.logger.Warn().Err(jerr).Str("op_id", opID).Msg("Could not close journal entry")
	}
}

// Move moves the node at src to dst.
//
// If dst names a missing entry in an existing folder, the node is moved
// there and renamed; the rename is never issued when the move failed.
// If dst is a folder, the node is moved into it. If dst is a file, the node
// is moved next to it, the file is removed and the node takes its name.
// Steps run in order and the first failing step stops the operation.
func (s *Session) Move(ctx context.Context, src, dst string) (*MoveResult, error) {
	if err := s.requireLogin("move"); err != nil {
		return nil, err
	}

	from, err := s.Resolve(src)
	if err != nil {
		return nil, err
	}
	if from.Node == nil {
		return nil, opErr("move", src, ErrNotFound)
	}
	to, err := s.Resolve(dst, WithNameCapture())
	if err != nil {
		return nil, err
	}
	if to.Node == nil {
		return nil, opErr("move", dst, ErrNotFound)
	}

	opID := s.journalBegin(ctx, "move", fmt.Sprintf("%s -> %s", src, dst))
	res, err := s.move(ctx, from.Node, to, src, dst)
	s.journalEnd(ctx, opID, err)
	return res, err
}

func (s *Session) move(ctx context.Context, n *model.Node, to Resolved, src, dst string) (*MoveResult, error) {
	res := &MoveResult{Node: n.Handle}
	tn := to.Node

	if to.Name != "" {
		if tn.IsFile() {
			return res, opErr("move", dst, ErrNotADirectory)
		}
		if err := s.moveInto(ctx, n, tn, src); err != nil {
			s.logger.Error().Err(err).Msg("Won't rename, since move failed")
			return res, err
		}
		res.Moved = true
		if err := s.rename(ctx, n, to.Name, dst); err != nil {
			return res, err
		}
		res.Renamed = true
		return res, nil
	}

	if !tn.IsFile() {
		if err := s.moveInto(ctx, n, tn, src); err != nil {
			return res, err
		}
		res.Moved = true
		return res, nil
	}

	// Target is a file: take its place.
	name := tn.Name
	if tn.ParentHandle == model.UNDEF {
		return res, opErr("move", dst, ErrOrphaned)
	}
	parent := s.store.GetNodeByHandle(tn.ParentHandle)
	if parent == nil {
		return res, opErr("move", dst, ErrOrphaned)
	}

	if err := s.moveInto(ctx, n, parent, src); err != nil {
		return res, err
	}
	res.Moved = true

	if n.Handle != tn.Handle {
		if _, err := s.await(ctx, s.opts.OpTimeout, "remove", dst, func(l provider.RequestListener) {
			s.store.Remove(tn, l)
		}); err != nil {
			s.logger.Error().Err(err).Str("path", dst).Msg("Couldn't remove the replaced file, not renaming")
			return res, err
		}
		res.Replaced = true
	}

	cur := s.store.GetNodeByHandle(n.Handle)
	if cur == nil {
		return res, opErr("move", src, ErrNotFound)
	}
	if !s.shouldRename(cur.Name, name) {
		s.logger.Debug().Str("name", cur.Name).Str("target", name).Msg("Skipping rename")
		return res, nil
	}
	if err := s.rename(ctx, cur, name, dst); err != nil {
		return res, err
	}
	res.Renamed = true
	return res, nil
}

func (s *Session) shouldRename(current, target string) bool {
	if s.opts.RenameMode == RenameWhenEqual {
		return current == target
	}
	return current != target
}

// moveInto reparents n under dest. The move only counts once the store
// shows n under dest; an acknowledged request alone is not enough.
func (s *Session) moveInto(ctx context.Context, n, dest *model.Node, path string) error {
	if _, err := s.await(ctx, s.opts.OpTimeout, "move", path, func(l provider.RequestListener) {
		s.store.MoveNode(n, dest, l)
	}); err != nil {
		return err
	}
	parent := model.UNDEF
	if cur := s.store.GetNodeByHandle(n.Handle); cur != nil && !cur.IsRemoved {
		parent = cur.ParentHandle
	}
	if parent != dest.Handle {
		return &OpError{
			Op:      "move",
			Path:    path,
			Message: fmt.Sprintf("move not confirmed: node is under %s, expected %s", parent, dest.Handle),
			Err:     ErrRemote,
		}
	}
	s.logger.Debug().Str("node", n.Handle.String()).Str("parent", dest.Handle.String()).Msg("Node moved")
	return nil
}

func (s *Session) rename(ctx context.Context, n *model.Node, name, path string) error {
	if _, err := s.await(ctx, s.opts.OpTimeout, "rename", path, func(l provider.RequestListener) {
		s.store.RenameNode(n, name, l)
	}); err != nil {
		return err
	}
	s.logger.Debug().Str("node", n.Handle.String()).Str("name", name).Msg("Node renamed")
	return nil
}

// MkdirResult lists the folders created by MakeDirectoryPath.
type MkdirResult struct {
	Created []model.Handle
	Leaf    model.Handle
}

// MakeDirectoryPath creates each missing folder of a '/'-separated path
// below the working directory. Existing folders are descended into and empty
// names are skipped. When the final name already existed the result is
// returned along with ErrAlreadyExists, which callers treat as a notice.
func (s *Session) MakeDirectoryPath(ctx context.Context, path string) (*MkdirResult, error) {
	if err := s.requireLogin("mkdir"); err != nil {
		return nil, err
	}
	cur := s.CwdNode()
	if cur == nil {
		return nil, opErr("mkdir", path, ErrNotFound)
	}

	opID := s.journalBegin(ctx, "mkdir", path)
	res, err := s.mkdirAll(ctx, cur, path)
	if err != nil && !IsNotice(err) {
		s.journalEnd(ctx, opID, err)
	} else {
		s.journalEnd(ctx, opID, nil)
	}
	return res, err
}

func (s *Session) mkdirAll(ctx context.Context, cur *model.Node, path string) (*MkdirResult, error) {
	res := &MkdirResult{Leaf: cur.Handle}
	var leaves []string
	for _, name := range strings.Split(path, "/") {
		if name != "" {
			leaves = append(leaves, name)
		}
	}
	existed := false

	for i, name := range leaves {
		last := i == len(leaves)-1

		if existing := s.store.GetChildNode(cur, name); existing != nil {
			if existing.IsFile() {
				return res, opErr("mkdir", path, ErrNotADirectory)
			}
			cur = existing
			existed = last
			res.Leaf = cur.Handle
			continue
		}

		s.logger.Debug().Str("name", name).Msg("Creating (sub)folder")
		parent := cur
		if _, err := s.await(ctx, s.opts.OpTimeout, "mkdir", path, func(l provider.RequestListener) {
			s.store.CreateFolder(name, parent, l)
		}); err != nil {
			return res, err
		}
		cur = s.store.GetChildNode(parent, name)
		if cur == nil {
			s.logger.Error().Str("name", name).Msg("Couldn't get node for created subfolder")
			return res, &OpError{Op: "mkdir", Path: path, Message: "couldn't get node for created subfolder: " + name, Err: ErrCreateFailed}
		}
		res.Created = append(res.Created, cur.Handle)
		res.Leaf = cur.Handle
	}

	if existed {
		return res, &OpError{Op: "mkdir", Path: path, Message: "Folder already exists", Err: ErrAlreadyExists}
	}
	return res, nil
}
