// Package model defines the domain types shared by the shell core and the node store.
// Nodes are owned by the store; everything here is a value snapshot.
package model

import (
	"fmt"
	"time"
)

// Handle is the opaque, lifetime-stable identifier of a remote node.
type Handle uint64

// UNDEF denotes "no node".
const UNDEF Handle = ^Handle(0)

// String renders the handle in the fixed-width form used by logs and listings.
func (h Handle) String() string {
	if h == UNDEF {
		return "UNDEF"
	}
	return fmt.Sprintf("%012x", uint64(h))
}

// NodeType represents the kind of a remote node.
type NodeType int

const (
	NodeTypeUnknown NodeType = iota - 1
	NodeTypeFile
	NodeTypeFolder
	NodeTypeRoot
	NodeTypeInbox
	NodeTypeRubbish
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeFolder:
		return "folder"
	case NodeTypeRoot:
		return "root"
	case NodeTypeInbox:
		return "inbox"
	case NodeTypeRubbish:
		return "rubbish"
	default:
		return "unknown"
	}
}

// NoNamePlaceholder is displayed for nodes whose name is absent or could not be decrypted.
const NoNamePlaceholder = "CRYPTO_ERROR"

// Node is a point-in-time copy of a remote node.
// Holding a Node never extends the lifetime of the node in the store.
type Node struct {
	Handle       Handle    `json:"handle"`
	ParentHandle Handle    `json:"parent_handle"`
	Type         NodeType  `json:"type"`
	Name         string    `json:"name,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`

	// PublicHandle is UNDEF unless the node is exported as a public link.
	PublicHandle Handle `json:"public_handle"`
	// ExpirationTime is the export link expiry (unix seconds); 0 means permanent.
	ExpirationTime int64 `json:"expiration_time,omitempty"`

	IsInShare bool `json:"is_inshare"`
	IsRemoved bool `json:"is_removed"`
}

// DisplayName returns the node name or the placeholder when it is unavailable.
func (n *Node) DisplayName() string {
	if n.Name == "" {
		return NoNamePlaceholder
	}
	return n.Name
}

// IsFile reports whether the node is a plain file.
func (n *Node) IsFile() bool {
	return n.Type == NodeTypeFile
}

// IsExported reports whether the node has a public export link.
func (n *Node) IsExported() bool {
	return n.PublicHandle != UNDEF
}

// AccessLevel is the access granted through a share.
type AccessLevel int

const (
	AccessUnknown AccessLevel = iota - 1
	AccessRead
	AccessReadWrite
	AccessFull
	AccessOwner
)

// String returns the human-readable access description used in listings.
func (a AccessLevel) String() string {
	switch a {
	case AccessUnknown:
		return "unknown access"
	case AccessRead:
		return "read access"
	case AccessReadWrite:
		return "read/write access"
	case AccessFull:
		return "full access"
	case AccessOwner:
		return "owner access"
	}
	return "undefined"
}

// ParseAccessLevel maps the shell's short access words to a level.
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch s {
	case "r", "ro":
		return AccessRead, true
	case "rw":
		return AccessReadWrite, true
	case "full":
		return AccessFull, true
	}
	return AccessUnknown, false
}

// Share describes one share of a folder.
// For outgoing shares User is the grantee; for inbound shares it is the owner.
type Share struct {
	NodeHandle Handle      `json:"node_handle"`
	User       string      `json:"user"`
	Access     AccessLevel `json:"access"`
	CreatedAt  time.Time   `json:"created_at"`
	Pending    bool        `json:"pending,omitempty"`
}

// Visibility of a contact.
type Visibility string

const (
	VisibilityVisible  Visibility = "visible"
	VisibilityHidden   Visibility = "hidden"
	VisibilityInactive Visibility = "inactive"
	VisibilityBlocked  Visibility = "blocked"
	VisibilityMe       Visibility = "me"
)

// User is a contact known to the account.
type User struct {
	Email      string     `json:"email"`
	Visibility Visibility `json:"visibility"`
	// SharingCount is the number of folders this user shares with the account.
	SharingCount int `json:"sharing_count"`
}

// ContactRequestAction selects what an invite does to a pending contact request.
type ContactRequestAction int

const (
	ContactRequestAdd ContactRequestAction = iota
	ContactRequestDelete
	ContactRequestRemind
)

func (a ContactRequestAction) String() string {
	switch a {
	case ContactRequestAdd:
		return "add"
	case ContactRequestDelete:
		return "delete"
	case ContactRequestRemind:
		return "remind"
	}
	return "unknown"
}

// ContactRequest is a pending contact request, incoming or outgoing.
type ContactRequest struct {
	ID             Handle    `json:"id"`
	SourceEmail    string    `json:"source_email"`
	TargetEmail    string    `json:"target_email"`
	Message        string    `json:"message,omitempty"`
	Outgoing       bool      `json:"outgoing"`
	CreatedAt      time.Time `json:"created_at"`
	LastRemindedAt time.Time `json:"last_reminded_at"`
}

// JournalState is the lifecycle state of a journaled mutation.
type JournalState string

const (
	JournalPending    JournalState = "pending"
	JournalCommitted  JournalState = "committed"
	JournalRolledBack JournalState = "rolled_back"
)

// JournalEntry records one multi-step mutation issued by the shell.
type JournalEntry struct {
	ID            int64        `json:"id"`
	OperationID   string       `json:"operation_id"`
	OperationType string       `json:"operation_type"`
	Payload       string       `json:"payload"`
	State         JournalState `json:"state"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}
