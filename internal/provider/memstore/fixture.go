package memstore

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cloudfs/cloudsh/internal/model"
)

// Fixture describes the initial contents of a simulated account.
type Fixture struct {
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	Contacts []ContactSpec `yaml:"contacts"`
	Root     []NodeSpec    `yaml:"root"`
	Inbox    []NodeSpec    `yaml:"inbox"`
	Rubbish  []NodeSpec    `yaml:"rubbish"`
	InShares []InShareSpec `yaml:"inshares"`
	PCRs     PCRSpec       `yaml:"pcrs"`
}

// NodeSpec describes one node and its subtree.
// Type is "file" or "folder"; when omitted a node with children is a folder.
type NodeSpec struct {
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Size     int64       `yaml:"size"`
	Export   string      `yaml:"export"` // "", "permanent" or "temporal"
	Shares   []ShareSpec `yaml:"shares"`
	Pending  []ShareSpec `yaml:"pending"`
	Children []NodeSpec  `yaml:"children"`
}

// ShareSpec is an outgoing share in a fixture.
type ShareSpec struct {
	User   string `yaml:"user"`
	Access string `yaml:"access"`
}

// InShareSpec is a folder another user shares with the account.
type InShareSpec struct {
	Owner    string     `yaml:"owner"`
	Access   string     `yaml:"access"`
	Name     string     `yaml:"name"`
	Children []NodeSpec `yaml:"children"`
}

// ContactSpec is a contact in a fixture.
type ContactSpec struct {
	Email      string `yaml:"email"`
	Visibility string `yaml:"visibility"`
}

// PCRSpec lists pending contact requests.
type PCRSpec struct {
	Incoming []PCREntry `yaml:"incoming"`
	Outgoing []PCREntry `yaml:"outgoing"`
}

// PCREntry is one pending contact request.
type PCREntry struct {
	Email   string `yaml:"email"`
	Message string `yaml:"message"`
}

// DefaultFixture is an empty account with fixed credentials.
func DefaultFixture() *Fixture {
	return &Fixture{
		Email:    "user@example.com",
		Password: "password",
	}
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// LoadFixture reads and decodes a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

func (fx *Fixture) validate() error {
	if fx.Email == "" {
		return fmt.Errorf("fixture: email is required")
	}
	var check func(prefix string, specs []NodeSpec) error
	check = func(prefix string, specs []NodeSpec) error {
		for _, s := range specs {
			p := prefix + "/" + s.Name
			switch s.kind() {
			case model.NodeTypeFile:
				if len(s.Children) > 0 {
					return fmt.Errorf("fixture: file %s has children", p)
				}
			case model.NodeTypeFolder:
			default:
				return fmt.Errorf("fixture: %s has unknown type %q", p, s.Type)
			}
			switch s.Export {
			case "", "permanent", "temporal":
			default:
				return fmt.Errorf("fixture: %s has unknown export %q", p, s.Export)
			}
			for _, sh := range append(append([]ShareSpec{}, s.Shares...), s.Pending...) {
				if _, ok := model.ParseAccessLevel(sh.Access); !ok {
					return fmt.Errorf("fixture: %s shared with %s has bad access %q", p, sh.User, sh.Access)
				}
			}
			if err := check(p, s.Children); err != nil {
				return err
			}
		}
		return nil
	}
	for _, tree := range [][]NodeSpec{fx.Root, fx.Inbox, fx.Rubbish} {
		if err := check("", tree); err != nil {
			return err
		}
	}
	for _, in := range fx.InShares {
		if in.Owner == "" || in.Name == "" {
			return fmt.Errorf("fixture: inshare needs owner and name")
		}
		if _, ok := model.ParseAccessLevel(in.Access); !ok {
			return fmt.Errorf("fixture: inshare %s has bad access %q", in.Name, in.Access)
		}
		if err := check(in.Owner+":"+in.Name, in.Children); err != nil {
			return err
		}
	}
	return nil
}

func (s NodeSpec) kind() model.NodeType {
	switch strings.ToLower(s.Type) {
	case "file":
		return model.NodeTypeFile
	case "folder", "dir":
		return model.NodeTypeFolder
	case "":
		if s.Children != nil {
			return model.NodeTypeFolder
		}
		return model.NodeTypeFile
	}
	return model.NodeTypeUnknown
}

func parseVisibility(v string) model.Visibility {
	switch model.Visibility(strings.ToLower(v)) {
	case model.VisibilityHidden:
		return model.VisibilityHidden
	case model.VisibilityInactive:
		return model.VisibilityInactive
	case model.VisibilityBlocked:
		return model.VisibilityBlocked
	}
	return model.VisibilityVisible
}
