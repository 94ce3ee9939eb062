package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/secret"
)

const (
	defaultDialTimeout = 30 * time.Second
	keepAliveRequest   = "keepalive@openssh.com"
)

// SSHDialer opens an authenticated SSH client.
type SSHDialer interface {
	DialContext(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// NetDialer dials TCP and performs the SSH handshake. The handshake honours
// the context deadline.
type NetDialer struct {
	Timeout time.Duration
}

func (d NetDialer) DialContext(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// SSHOption customizes DialSSH.
type SSHOption func(*SSHConnection)

// WithDialer replaces the network dialer.
func WithDialer(d SSHDialer) SSHOption {
	return func(c *SSHConnection) {
		c.dialer = d
	}
}

// WithKnownHostsFile sets the file used when no host key is pinned.
// Defaults to ~/.ssh/known_hosts.
func WithKnownHostsFile(path string) SSHOption {
	return func(c *SSHConnection) {
		c.knownHostsFile = path
	}
}

// SSHConnection runs commands through sessions of a single SSH client.
type SSHConnection struct {
	addr           string
	hostKey        string
	knownHostsFile string
	dialer         SSHDialer
	client         *ssh.Client
	agent          *AgentKeyManager
	log            logger.Logger
}

// DialSSH connects and authenticates to the host described by cfg. A private
// key is used when configured, with the password as its passphrase. Otherwise
// password authentication is used, and without a password the keys of a
// running ssh-agent.
func DialSSH(ctx context.Context, cfg *config.Config, opts ...SSHOption) (*SSHConnection, error) {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultSSHPort
	}

	c := &SSHConnection{
		addr:    net.JoinHostPort(cfg.HostName, strconv.Itoa(port)),
		hostKey: strings.TrimSpace(cfg.HostKey),
		dialer:  NetDialer{Timeout: defaultDialTimeout},
		log:     logger.For("ssh").With("host", cfg.HostName),
	}
	for _, opt := range opts {
		opt(c)
	}

	callback, err := c.hostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}

	var auth ssh.AuthMethod
	switch {
	case cfg.PrivateKey != "":
		c.log.Debug("Using public key authentication", "private_key", cfg.PrivateKey)
		auth = ssh.PublicKeysCallback(FileKeyManager{Path: cfg.PrivateKey, Passphrase: cfg.Password}.Signers)
	case !cfg.Password.IsEmpty():
		c.log.Debug("Using password authentication")
		auth = passwordAuth(cfg.Password)
	default:
		c.log.Debug("Using SSH agent authentication")
		c.agent = &AgentKeyManager{}
		auth = ssh.PublicKeysCallback(c.agent.Signers)
	}

	client, err := c.dialer.DialContext(ctx, "tcp", c.addr, &ssh.ClientConfig{
		User:            cfg.UserName,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: callback,
		Timeout:         defaultDialTimeout,
	})
	if err != nil {
		if c.agent != nil {
			_ = c.agent.Close()
		}
		return nil, fmt.Errorf("%w: could not connect to %s: %v", common.ErrConnectionFailed, c.addr, err)
	}
	c.client = client

	c.log.Info("Connected", "addr", c.addr, "user", cfg.UserName)
	return c, nil
}

func passwordAuth(password *secret.Secret) ssh.AuthMethod {
	return ssh.PasswordCallback(func() (string, error) {
		var s string
		err := password.Access(func(b []byte) error {
			s = string(b)
			return nil
		})
		return s, err
	})
}

func (c *SSHConnection) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch c.hostKey {
	case config.HostKeyAny:
		c.log.Warn("Host key verification is disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	case "":
		path := c.knownHostsFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not locate known_hosts: %v", err)
			}
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("could not load known hosts %s: %v", path, err)
		}
		return callback, nil
	default:
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.hostKey))
		if err != nil {
			return nil, fmt.Errorf("could not parse host key: %v", err)
		}
		return ssh.FixedHostKey(key), nil
	}
}

func (c *SSHConnection) Execute(ctx context.Context, stdin []byte, args ...string) (*Result, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", common.ErrInvalidArgument)
	}
	if c.client == nil {
		return nil, fmt.Errorf("%w: connection is closed", common.ErrTransportBroken)
	}

	result := NewResult(args)
	cmd := shellescape.QuoteCommand(args)
	c.log.Debug("Executing remote command", "args", args)

	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: could not open session: %v", common.ErrTransportBroken, err)
	}
	defer session.Close()

	stdinPipe, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: could not attach stdin: %v", common.ErrTransportBroken, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: could not attach stdout: %v", common.ErrTransportBroken, err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: could not attach stderr: %v", common.ErrTransportBroken, err)
	}

	if err := session.Start(cmd); err != nil {
		return nil, fmt.Errorf("%w: could not execute command %v: %v", common.ErrTransportBroken, args, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()

	feed := func() error {
		if len(stdin) > 0 {
			if _, err := stdinPipe.Write(stdin); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
		}
		return stdinPipe.Close()
	}

	if err := collect(result, stdout, stderr, feed); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: could not read output of command %v: %v", common.ErrTransportBroken, args, err)
	}

	err = session.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: command %v: %w", common.ErrTransportBroken, args, ctxErr)
	}

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		c.log.Warn("Remote command exited without status", "args", args)
	default:
		return nil, fmt.Errorf("%w: waiting for command %v: %v", common.ErrTransportBroken, args, err)
	}

	c.log.Debug("Remote command exited", "args", args, "exit_code", result.ExitCode,
		"stdout_lines", len(result.Stdout), "stderr_lines", len(result.Stderr))
	return result, nil
}

// IsAlive sends a keepalive request that the server must answer.
func (c *SSHConnection) IsAlive() bool {
	if c.client == nil {
		return false
	}
	_, _, err := c.client.SendRequest(keepAliveRequest, true, nil)
	if err != nil {
		c.log.Debug("Keepalive failed", "error", err)
		return false
	}
	return true
}

// Authenticate opens a second connection with password authentication as
// username and closes it straight away.
func (c *SSHConnection) Authenticate(ctx context.Context, username string, password *secret.Secret) error {
	callback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}

	client, err := c.dialer.DialContext(ctx, "tcp", c.addr, &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{passwordAuth(password)},
		HostKeyCallback: callback,
		Timeout:         defaultDialTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: authentication failed for user %s: %v", common.ErrConnectionFailed, username, err)
	}
	return client.Close()
}

func (c *SSHConnection) Close() error {
	var result *multierror.Error
	if c.client != nil {
		if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		c.client = nil
	}
	if c.agent != nil {
		if err := c.agent.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
