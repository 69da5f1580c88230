package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

// Share grants, changes or, with model.AccessUnknown, revokes access to the
// folder at path for email.
func (s *Session) Share(ctx context.Context, path, email string, access model.AccessLevel) error {
	if err := s.requireLogin("share"); err != nil {
		return err
	}
	res, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if res.Node == nil {
		return opErr("share", path, ErrNotFound)
	}
	if res.Node.IsFile() {
		return opErr("share", path, ErrNotADirectory)
	}
	_, err = s.await(ctx, s.opts.OpTimeout, "share", path, func(l provider.RequestListener) {
		s.store.Share(res.Node, email, access, l)
	})
	return err
}

// ListAllShares writes every outgoing share of the account followed by the
// inbound shares grouped by owner.
func (s *Session) ListAllShares(w io.Writer) error {
	if err := s.requireLogin("share"); err != nil {
		return err
	}
	seen := make(map[model.Handle]bool)
	for _, sh := range s.store.GetAllOutShares() {
		if seen[sh.NodeHandle] {
			continue
		}
		seen[sh.NodeHandle] = true
		n := s.store.GetNodeByHandle(sh.NodeHandle)
		if n == nil {
			continue
		}
		fmt.Fprintf(w, "%s\n", NodePath(s.store, n.Handle))
		ListShares(w, s.store, n)
		for _, p := range s.store.GetPendingOutShares(n) {
			fmt.Fprintf(w, "\t%s, shared (still pending) with %s (%s)\n", n.DisplayName(), p.User, p.Access)
		}
	}

	byOwner := make(map[string][]model.Share)
	var owners []string
	for _, sh := range s.store.GetInSharesList() {
		if _, ok := byOwner[sh.User]; !ok {
			owners = append(owners, sh.User)
		}
		byOwner[sh.User] = append(byOwner[sh.User], sh)
	}
	for _, owner := range owners {
		fmt.Fprintf(w, "Shared folders from %s:\n", owner)
		for _, sh := range byOwner[owner] {
			if n := s.store.GetNodeByHandle(sh.NodeHandle); n != nil {
				fmt.Fprintf(w, "\t%s (%s)\n", n.DisplayName(), sh.Access)
			}
		}
	}
	return nil
}

// ListContacts writes the contacts with visibility and the number of folders
// each shares with the account.
func (s *Session) ListContacts(w io.Writer) error {
	if err := s.requireLogin("users"); err != nil {
		return err
	}
	for _, u := range s.store.GetContacts() {
		if u.Visibility == model.VisibilityMe {
			continue
		}
		fmt.Fprintf(w, "%s, %s", u.Email, u.Visibility)
		if u.SharingCount > 0 {
			fmt.Fprintf(w, ", sharing %d folder(s)", u.SharingCount)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Invite adds, deletes or reminds an outgoing contact request.
func (s *Session) Invite(ctx context.Context, email, message string, action model.ContactRequestAction) error {
	if err := s.requireLogin("invite"); err != nil {
		return err
	}
	if strings.EqualFold(email, s.store.MyEmail()) {
		return &OpError{Op: "invite", Path: email, Message: "Cannot send invitation to your own user", Err: ErrRemote, Code: provider.EARGS}
	}
	_, err := s.await(ctx, s.opts.OpTimeout, "invite", email, func(l provider.RequestListener) {
		s.store.InviteContact(email, message, action, l)
	})
	return err
}

// ListContactRequests writes the incoming and outgoing pending contact requests.
func (s *Session) ListContactRequests(w io.Writer) error {
	if err := s.requireLogin("showpcr"); err != nil {
		return err
	}
	in := s.store.GetIncomingContactRequests()
	if len(in) > 0 {
		fmt.Fprintln(w, "Incoming PCRs:")
		for _, p := range in {
			fmt.Fprintf(w, " %s\t (id: %s, creation: %s)\n", p.SourceEmail, p.ID, p.CreatedAt.Format(time.RFC3339))
		}
	}
	out := s.store.GetOutgoingContactRequests()
	if len(out) > 0 {
		fmt.Fprintln(w, "Outgoing PCRs:")
		for _, p := range out {
			fmt.Fprintf(w, " %s\t (id: %s, creation: %s", p.TargetEmail, p.ID, p.CreatedAt.Format(time.RFC3339))
			if !p.LastRemindedAt.IsZero() {
				fmt.Fprintf(w, ", reminded: %s", p.LastRemindedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(w, ")")
		}
	}
	return nil
}
