// Package passwd manages Unix accounts and groups on a local or remote host
// through its native tools.
package passwd

import (
	"context"
	"fmt"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd/become"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/connection"
	"github.com/m-217/passwdctl/passwd/method"
	"github.com/m-217/passwdctl/passwd/query"
	"github.com/m-217/passwdctl/passwd/schema"
	"github.com/m-217/passwdctl/passwd/secret"
)

// Option customizes New.
type Option func(*options)

type options struct {
	conn    connection.Connection
	sshOpts []connection.SSHOption
}

// WithConnection uses conn instead of opening the configured channel.
func WithConnection(conn connection.Connection) Option {
	return func(o *options) {
		o.conn = conn
	}
}

// WithSSHOptions passes options to the SSH channel.
func WithSSHOptions(opts ...connection.SSHOption) Option {
	return func(o *options) {
		o.sshOpts = append(o.sshOpts, opts...)
	}
}

// ResultsHandler receives search results. Returning false stops the search.
type ResultsHandler func(r *schema.Record) bool

// Connector is the operation surface for one configured host. It is not safe
// for concurrent use.
type Connector struct {
	cfg    *config.Config
	conn   connection.Connection
	method method.Method
	log    logger.Logger
}

// New validates cfg, opens the channel and selects elevation and method.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	bm, err := become.New(cfg.BecomeMethod, cfg.BecomePassword)
	if err != nil {
		return nil, err
	}

	conn := o.conn
	if conn == nil {
		conn, err = connection.New(ctx, cfg, o.sshOpts...)
		if err != nil {
			return nil, err
		}
	}

	m, err := method.New(cfg, conn, bm)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Connector{cfg: cfg, conn: conn, method: m, log: logger.For("connector")}
	c.log.Debug("Connector initialized", "connection", cfg.ConnectionType, "method", m.Kind().String(), "become", bm.Kind().String())
	return c, nil
}

// Create adds an object and returns its uid.
func (c *Connector) Create(ctx context.Context, class schema.ObjectClass, attrs []schema.Attribute) (string, error) {
	return c.method.Create(ctx, class, attrs)
}

// Update replaces the values of every given attribute.
func (c *Connector) Update(ctx context.Context, class schema.ObjectClass, uid string, attrs []schema.Attribute) (string, error) {
	deltas := make([]schema.Delta, 0, len(attrs))
	for _, a := range attrs {
		deltas = append(deltas, schema.ReplaceDelta(a.Name, a.Values...))
	}
	return c.method.Update(ctx, class, uid, deltas)
}

// UpdateDelta applies deltas and returns the uid afterwards.
func (c *Connector) UpdateDelta(ctx context.Context, class schema.ObjectClass, uid string, deltas []schema.Delta) (string, error) {
	return c.method.Update(ctx, class, uid, deltas)
}

// AddAttributeValues adds the given values to each attribute.
func (c *Connector) AddAttributeValues(ctx context.Context, class schema.ObjectClass, uid string, attrs []schema.Attribute) (string, error) {
	deltas := make([]schema.Delta, 0, len(attrs))
	for _, a := range attrs {
		deltas = append(deltas, schema.Delta{Name: a.Name, Add: a.Values})
	}
	return c.method.Update(ctx, class, uid, deltas)
}

// RemoveAttributeValues removes the given values from each attribute.
func (c *Connector) RemoveAttributeValues(ctx context.Context, class schema.ObjectClass, uid string, attrs []schema.Attribute) (string, error) {
	deltas := make([]schema.Delta, 0, len(attrs))
	for _, a := range attrs {
		deltas = append(deltas, schema.Delta{Name: a.Name, Remove: a.Values})
	}
	return c.method.Update(ctx, class, uid, deltas)
}

func (c *Connector) Delete(ctx context.Context, class schema.ObjectClass, uid string) error {
	return c.method.Delete(ctx, class, uid)
}

// Search passes every record matching q to handler. A nil q matches all.
func (c *Connector) Search(ctx context.Context, class schema.ObjectClass, q *query.Query, handler ResultsHandler) error {
	records, err := c.method.Search(ctx, class, q)
	if err != nil {
		return err
	}
	for _, r := range records {
		if !handler(r) {
			break
		}
	}
	return nil
}

// Test checks that the configured management tool is available.
func (c *Connector) Test(ctx context.Context) error {
	return c.method.Test(ctx)
}

// CheckAlive fails with ErrConnectionFailed when the channel is down.
func (c *Connector) CheckAlive() error {
	if !c.conn.IsAlive() {
		return fmt.Errorf("%w: connection is not alive", common.ErrConnectionFailed)
	}
	return nil
}

// Authenticate verifies the password of an account and returns its uid.
func (c *Connector) Authenticate(ctx context.Context, class schema.ObjectClass, username string, password *secret.Secret) (string, error) {
	if class != schema.Account {
		return "", fmt.Errorf("%w: invalid object class %s", common.ErrConnectionFailed, class)
	}
	if err := c.conn.Authenticate(ctx, username, password); err != nil {
		return "", err
	}
	return username, nil
}

// Schema describes the account and group classes of the configured method.
func (c *Connector) Schema() ([]schema.ObjectClassInfo, error) {
	var infos []schema.ObjectClassInfo
	for _, class := range []schema.ObjectClass{schema.Account, schema.Group} {
		layouts, err := c.method.Layouts(class)
		if err != nil {
			return nil, err
		}
		infos = append(infos, schema.Describe(class, layouts...))
	}
	return infos, nil
}

// Config returns the configuration the connector was created with.
func (c *Connector) Config() *config.Config {
	return c.cfg
}

func (c *Connector) Close() error {
	return c.conn.Close()
}
