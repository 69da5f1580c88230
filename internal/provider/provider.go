// Package provider defines the node store contract consumed by the shell core.
// A backend owns node lifetime; the core only ever sees value snapshots and handles.
// Mutating and session calls complete asynchronously through a RequestListener.
package provider

import (
	"fmt"

	"github.com/cloudfs/cloudsh/internal/model"
)

// ErrorCode is the result code reported by a finished request.
type ErrorCode int

const (
	OK           ErrorCode = 0
	EINTERNAL    ErrorCode = -1
	EARGS        ErrorCode = -2
	EAGAIN       ErrorCode = -3
	ERATELIMIT   ErrorCode = -4
	EFAILED      ErrorCode = -5
	ETOOMANY     ErrorCode = -6
	ERANGE       ErrorCode = -7
	EEXPIRED     ErrorCode = -8
	ENOENT       ErrorCode = -9
	ECIRCULAR    ErrorCode = -10
	EACCESS      ErrorCode = -11
	EEXIST       ErrorCode = -12
	EINCOMPLETE  ErrorCode = -13
	EKEY         ErrorCode = -14
	ESID         ErrorCode = -15
	EBLOCKED     ErrorCode = -16
	EOVERQUOTA   ErrorCode = -17
	ETEMPUNAVAIL ErrorCode = -18
)

// ErrorString returns the store's description of a code.
func ErrorString(code ErrorCode) string {
	switch code {
	case OK:
		return "No error"
	case EINTERNAL:
		return "Internal error"
	case EARGS:
		return "Invalid argument"
	case EAGAIN:
		return "Request failed, retrying"
	case ERATELIMIT:
		return "Rate limit exceeded"
	case EFAILED:
		return "Failed permanently"
	case ETOOMANY:
		return "Too many concurrent connections or transfers"
	case ERANGE:
		return "Out of range"
	case EEXPIRED:
		return "Expired"
	case ENOENT:
		return "Not found"
	case ECIRCULAR:
		return "Circular linkage detected"
	case EACCESS:
		return "Access denied"
	case EEXIST:
		return "Already exists"
	case EINCOMPLETE:
		return "Incomplete"
	case EKEY:
		return "Invalid key/Decryption error"
	case ESID:
		return "Bad session ID"
	case EBLOCKED:
		return "Blocked"
	case EOVERQUOTA:
		return "Over quota"
	case ETEMPUNAVAIL:
		return "Temporarily not available"
	}
	return "Unknown error"
}

// Error is the outcome attached to a finished request.
// The instance handed to a listener is only valid during the callback; use Copy to keep it.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewError builds an Error carrying the store's own message for code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: ErrorString(code)}
}

// Copy returns an independent copy of e.
func (e *Error) Copy() *Error {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// IsOK reports whether the request succeeded.
func (e *Error) IsOK() bool {
	return e == nil || e.Code == OK
}

func (e *Error) String() string {
	if e == nil {
		return ErrorString(OK)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// RequestType identifies the kind of asynchronous request.
type RequestType int

const (
	RequestLogin RequestType = iota
	RequestFastLogin
	RequestLogout
	RequestLocalLogout
	RequestFetchNodes
	RequestMove
	RequestRename
	RequestRemove
	RequestCreateFolder
	RequestShare
	RequestInviteContact
)

func (t RequestType) String() string {
	switch t {
	case RequestLogin:
		return "login"
	case RequestFastLogin:
		return "fastlogin"
	case RequestLogout:
		return "logout"
	case RequestLocalLogout:
		return "locallogout"
	case RequestFetchNodes:
		return "fetchnodes"
	case RequestMove:
		return "move"
	case RequestRename:
		return "rename"
	case RequestRemove:
		return "remove"
	case RequestCreateFolder:
		return "createfolder"
	case RequestShare:
		return "share"
	case RequestInviteContact:
		return "invitecontact"
	}
	return "unknown"
}

// Request describes an asynchronous request and, once finished, its results.
// Like Error, the instance passed to a listener must be copied to outlive the callback.
type Request struct {
	Tag          string            `json:"tag"`
	Type         RequestType       `json:"type"`
	NodeHandle   model.Handle      `json:"node_handle"`
	ParentHandle model.Handle      `json:"parent_handle"`
	Name         string            `json:"name,omitempty"`
	Email        string            `json:"email,omitempty"`
	SessionKey   string            `json:"-"`
	Access       model.AccessLevel `json:"access"`
	Number       int64             `json:"number,omitempty"`
}

// Copy returns an independent copy of r.
func (r *Request) Copy() *Request {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// RequestListener receives the completion of a single request.
type RequestListener interface {
	OnRequestFinish(req *Request, err *Error)
}

// RequestListenerFunc adapts a function to RequestListener.
type RequestListenerFunc func(req *Request, err *Error)

// OnRequestFinish calls f(req, err).
func (f RequestListenerFunc) OnRequestFinish(req *Request, err *Error) {
	f(req, err)
}

// GlobalListener receives account-wide change notifications.
type GlobalListener interface {
	// OnNodesUpdate delivers snapshots of nodes that were added, changed or removed.
	OnNodesUpdate(nodes []model.Node)
}

// NodeStore is the capability surface of a remote account.
//
// Getters return fresh snapshots or nil when the handle has no live node.
// Share getters return nil when a node has no shares of that kind.
type NodeStore interface {
	// Type returns the backend type name (memory, ...).
	Type() string

	GetNodeByHandle(h model.Handle) *model.Node
	// GetChildNode looks up a direct child by exact, case-sensitive name.
	// The first match wins when names are duplicated.
	GetChildNode(parent *model.Node, name string) *model.Node
	GetParentNode(n *model.Node) *model.Node
	// GetChildren lists the children of a folder-like node; files have none.
	GetChildren(n *model.Node) []*model.Node
	GetRootNode() *model.Node
	GetInboxNode() *model.Node
	GetRubbishNode() *model.Node

	GetOutShares(n *model.Node) []model.Share
	GetPendingOutShares(n *model.Node) []model.Share
	// GetAllOutShares lists every outgoing share in the account.
	GetAllOutShares() []model.Share
	// GetInSharesList lists inbound shares; User is the owner.
	GetInSharesList() []model.Share
	// GetInShares lists the inbound share roots granted by user.
	GetInShares(user string) []*model.Node
	GetAccess(n *model.Node) model.AccessLevel

	GetContacts() []model.User
	GetContact(email string) *model.User
	GetIncomingContactRequests() []model.ContactRequest
	GetOutgoingContactRequests() []model.ContactRequest

	IsLoggedIn() bool
	// DumpSession returns the resumable session token, or "" when logged out.
	DumpSession() string
	MyEmail() string

	Login(email, password string, l RequestListener)
	FastLogin(session string, l RequestListener)
	Logout(l RequestListener)
	LocalLogout(l RequestListener)
	FetchNodes(l RequestListener)

	MoveNode(n, newParent *model.Node, l RequestListener)
	RenameNode(n *model.Node, newName string, l RequestListener)
	Remove(n *model.Node, l RequestListener)
	CreateFolder(name string, parent *model.Node, l RequestListener)
	// Share grants, changes or (with model.AccessUnknown) revokes access to n for email.
	Share(n *model.Node, email string, access model.AccessLevel, l RequestListener)
	InviteContact(email, message string, action model.ContactRequestAction, l RequestListener)

	AddGlobalListener(l GlobalListener)
	RemoveGlobalListener(l GlobalListener)
}
