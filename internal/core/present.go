package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

// List writes the metadata of n. A folder lists its children one level
// down, and further when recurse is set; a file lists itself.
func List(w io.Writer, store provider.NodeStore, n *model.Node, recurse bool) {
	if n == nil {
		return
	}
	dumpTree(w, store, n, recurse, 0)
}

func dumpTree(w io.Writer, store provider.NodeStore, n *model.Node, recurse bool, depth int) {
	if depth > 0 || n.IsFile() {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("\t", depth), describe(store, n))
	}
	if n.IsFile() || n.IsRemoved {
		return
	}
	if depth > 0 && !recurse {
		return
	}
	for _, child := range store.GetChildren(n) {
		dumpTree(w, store, child, recurse, depth+1)
	}
}

// describe renders "name (details)" for one node.
func describe(store provider.NodeStore, n *model.Node) string {
	var b strings.Builder
	b.WriteString(n.DisplayName())
	b.WriteString(" (")

	switch n.Type {
	case model.NodeTypeFile:
		fmt.Fprintf(&b, "%d", n.Size)
		if n.IsExported() {
			fmt.Fprintf(&b, ", shared as exported %s file link", linkKind(n))
		}
	case model.NodeTypeFolder, model.NodeTypeRoot, model.NodeTypeInbox, model.NodeTypeRubbish:
		b.WriteString("folder")
		for _, sh := range store.GetOutShares(n) {
			fmt.Fprintf(&b, ", shared with %s, access %s", sh.User, sh.Access)
		}
		if n.IsExported() {
			fmt.Fprintf(&b, ", shared as exported %s folder link", linkKind(n))
		}
		for _, sh := range store.GetPendingOutShares(n) {
			fmt.Fprintf(&b, ", shared (still pending) with %s, access %s", sh.User, sh.Access)
		}
		if n.IsInShare {
			fmt.Fprintf(&b, ", inbound %s share", store.GetAccess(n))
		}
	default:
		b.WriteString("unsupported type, please upgrade")
	}

	b.WriteString(")")
	if n.IsRemoved {
		b.WriteString(" (DELETED)")
	}
	return b.String()
}

func linkKind(n *model.Node) string {
	if n.ExpirationTime > 0 {
		return "temporal"
	}
	return "permanent"
}

// ListShares writes one line per outgoing share of n, or a single export
// line when n is exported without any share.
func ListShares(w io.Writer, store provider.NodeStore, n *model.Node) {
	shares := store.GetOutShares(n)
	if len(shares) == 0 {
		if n.IsExported() {
			fmt.Fprintf(w, "\t%s, shared as exported folder link\n", n.DisplayName())
		}
		return
	}
	for _, sh := range shares {
		fmt.Fprintf(w, "\t%s, shared with %s (%s)\n", n.DisplayName(), sh.User, sh.Access)
	}
}

// NodePath rebuilds the canonical path of h: "/..." under the root,
// "//in/..." and "//bin/..." under the inbox and rubbish bin, and
// "user:share/..." inside an inbound share. Unknown handles yield "".
func NodePath(store provider.NodeStore, h model.Handle) string {
	n := store.GetNodeByHandle(h)
	if n == nil {
		return ""
	}
	if n.Type == model.NodeTypeRoot {
		return "/"
	}

	var parts []string
	prepend := func(s string) { parts = append([]string{s}, parts...) }

	for n != nil {
		switch n.Type {
		case model.NodeTypeFolder:
			prepend(EscapeName(n.DisplayName()))
			if n.IsInShare {
				owner := "UNKNOWN"
				for _, sh := range store.GetInSharesList() {
					if sh.NodeHandle == n.Handle {
						owner = sh.User
						break
					}
				}
				return owner + ":" + strings.Join(parts, "")
			}
		case model.NodeTypeInbox:
			prepend("//in")
			return strings.Join(parts, "")
		case model.NodeTypeRoot:
			return strings.Join(parts, "")
		case model.NodeTypeRubbish:
			prepend("//bin")
			return strings.Join(parts, "")
		default:
			prepend(EscapeName(n.DisplayName()))
		}
		prepend("/")
		n = store.GetParentNode(n)
	}
	return strings.Join(parts, "")
}

// ListMounts writes the namespace roots and the inbound shares.
func ListMounts(w io.Writer, store provider.NodeStore) {
	if n := store.GetRootNode(); n != nil {
		fmt.Fprintf(w, "ROOT on %s\n", NodePath(store, n.Handle))
	}
	if n := store.GetInboxNode(); n != nil {
		fmt.Fprintf(w, "INBOX on %s\n", NodePath(store, n.Handle))
	}
	if n := store.GetRubbishNode(); n != nil {
		fmt.Fprintf(w, "RUBBISH on %s\n", NodePath(store, n.Handle))
	}
	for _, sh := range store.GetInSharesList() {
		n := store.GetNodeByHandle(sh.NodeHandle)
		if n == nil {
			continue
		}
		fmt.Fprintf(w, "INSHARE on %s:%s (%s)\n", sh.User, n.DisplayName(), sh.Access)
	}
}
