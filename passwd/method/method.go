// Package method implements account and group management on top of a
// connection and an elevation method.
package method

import (
	"context"
	"fmt"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd/become"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/connection"
	"github.com/m-217/passwdctl/passwd/query"
	"github.com/m-217/passwdctl/passwd/schema"
)

// Kind selects the management strategy.
type Kind int

const (
	// Pw drives pw(8) for every operation.
	Pw Kind = iota
	// UserAddBSD reads /etc/master.passwd and /etc/group.
	UserAddBSD
	// UserAddLinux reads /etc/passwd merged with /etc/shadow, and /etc/group.
	UserAddLinux
)

func (k Kind) String() string {
	switch k {
	case Pw:
		return config.MethodPw
	case UserAddBSD:
		return config.MethodUserAdd + ":" + config.SubMethodBSD
	case UserAddLinux:
		return config.MethodUserAdd + ":" + config.SubMethodLinux
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configured method name such as "useradd:linux" to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{Pw, UserAddBSD, UserAddLinux} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown method %q", common.ErrConfiguration, name)
}

// Options carries the home directory settings used by create and delete.
type Options struct {
	CreateHomeDirectory      bool
	DeleteHomeDirectory      bool
	HomeDirectoryPermissions string
}

// Method is the selected strategy bound to its connection and elevation.
type Method struct {
	kind Kind
	// masterPasswd selects the BSD master.passwd layout for accounts.
	masterPasswd bool
	conn         connection.Connection
	become       become.Method
	opts         Options
	log          logger.Logger
}

// New selects the strategy named in cfg.
func New(cfg *config.Config, conn connection.Connection, bm become.Method) (Method, error) {
	kind, err := ParseKind(cfg.Method)
	if err != nil {
		return Method{}, err
	}
	return Method{
		kind:         kind,
		masterPasswd: cfg.UsesMasterPasswd(),
		conn:         conn,
		become:       bm,
		opts: Options{
			CreateHomeDirectory:      cfg.CreateHomeDirectory,
			DeleteHomeDirectory:      cfg.DeleteHomeDirectory,
			HomeDirectoryPermissions: cfg.HomeDirectoryPermissions,
		},
		log: logger.For("method").With("method", kind.String()),
	}, nil
}

func (m Method) Kind() Kind {
	return m.kind
}

// Create adds an account or group and returns its identity.
func (m Method) Create(ctx context.Context, class schema.ObjectClass, attrs []schema.Attribute) (string, error) {
	if m.kind == Pw {
		return m.pwCreate(ctx, class, attrs)
	}
	return "", m.unsupported("create")
}

// Update applies deltas to the object named uid and returns its identity
// afterwards, which differs from uid after a rename.
func (m Method) Update(ctx context.Context, class schema.ObjectClass, uid string, deltas []schema.Delta) (string, error) {
	if m.kind == Pw {
		return m.pwUpdate(ctx, class, uid, deltas)
	}
	return "", m.unsupported("update")
}

func (m Method) Delete(ctx context.Context, class schema.ObjectClass, uid string) error {
	if m.kind == Pw {
		return m.pwDelete(ctx, class, uid)
	}
	return m.unsupported("delete")
}

// Search returns every object of class matching q.
func (m Method) Search(ctx context.Context, class schema.ObjectClass, q *query.Query) ([]*schema.Record, error) {
	switch m.kind {
	case Pw:
		return m.pwSearch(ctx, class, q)
	default:
		return m.readSearch(ctx, class, q)
	}
}

// Test checks that the management tool is installed.
func (m Method) Test(ctx context.Context) error {
	tool := "pw"
	if m.kind != Pw {
		tool = "useradd"
	}
	result, err := m.run(ctx, nil, "whereis", tool)
	if err != nil {
		return err
	}
	return result.Check(0)
}

// Layouts returns the record layouts describing class, in precedence order.
func (m Method) Layouts(class schema.ObjectClass) ([]*schema.Schema, error) {
	switch class {
	case schema.Group:
		return []*schema.Schema{schema.Get(schema.KindGroup)}, nil
	case schema.Account:
		if m.masterPasswd {
			return []*schema.Schema{schema.Get(schema.KindMaster)}, nil
		}
		return []*schema.Schema{schema.Get(schema.KindShadow), schema.Get(schema.KindPasswd)}, nil
	}
	return nil, invalidClass(class)
}

func (m Method) run(ctx context.Context, stdin []byte, command string, args ...string) (*connection.Result, error) {
	return m.become.Execute(ctx, m.conn, stdin, command, args...)
}

func (m Method) unsupported(op string) error {
	return fmt.Errorf("%w: %s is not supported by method %s", common.ErrUnsupported, op, m.kind)
}

func invalidClass(class schema.ObjectClass) error {
	return fmt.Errorf("%w: invalid object class %q", common.ErrInvalidArgument, class)
}

// parseLines turns command output into records, dropping lines that do not
// parse.
func (m Method) parseLines(class schema.ObjectClass, s *schema.Schema, lines []string) []*schema.Record {
	records := make([]*schema.Record, 0, len(lines))
	skipped := 0
	for _, line := range lines {
		r, err := schema.ParseLine(class, s, line)
		if err != nil {
			skipped++
			continue
		}
		if r != nil {
			records = append(records, r)
		}
	}
	if skipped > 0 {
		m.log.Warn("Skipped unparsable lines", "layout", s.Kind.String(), "count", skipped)
	}
	return records
}

func filter(records []*schema.Record, q *query.Query) []*schema.Record {
	out := records[:0]
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
