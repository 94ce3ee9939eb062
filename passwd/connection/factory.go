package connection

import (
	"context"
	"fmt"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
)

// New opens the channel selected by cfg.ConnectionType.
func New(ctx context.Context, cfg *config.Config, opts ...SSHOption) (Connection, error) {
	switch cfg.ConnectionType {
	case config.ConnectionTypeLocal, "":
		return NewLocalConnection(), nil
	case config.ConnectionTypeSSH:
		return DialSSH(ctx, cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown connection type %q", common.ErrConnectionFailed, cfg.ConnectionType)
	}
}
