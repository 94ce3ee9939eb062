package connection

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/creack/pty"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/secret"
)

// suTimeout bounds the pty conversation with su in Authenticate.
const suTimeout = 6 * time.Second

// LocalConnection runs commands as child processes of the current process.
type LocalConnection struct {
	// SuCommand is the binary Authenticate falls back to. Defaults to "su".
	SuCommand string
	// ShadowFiles lists the password databases Authenticate reads hashes
	// from. The first readable one is used.
	ShadowFiles []string

	log logger.Logger
}

func NewLocalConnection() *LocalConnection {
	return &LocalConnection{
		SuCommand:   "su",
		ShadowFiles: []string{"/etc/shadow", "/etc/master.passwd"},
		log:         logger.For("local"),
	}
}

func (c *LocalConnection) Execute(ctx context.Context, stdin []byte, args ...string) (*Result, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", common.ErrInvalidArgument)
	}

	result := NewResult(args)
	c.log.Debug("Starting process", "args", args)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: could not attach stdout of %v: %v", common.ErrTransportBroken, args, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: could not attach stderr of %v: %v", common.ErrTransportBroken, args, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: could not execute command %v: %v", common.ErrTransportBroken, args, err)
	}

	if err := collect(result, stdout, stderr); err != nil {
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: could not read output of command %v: %v", common.ErrTransportBroken, args, err)
	}

	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: command %v: %w", common.ErrTransportBroken, args, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = cmd.ProcessState.ExitCode()
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("%w: waiting for command %v: %v", common.ErrTransportBroken, args, err)
	}

	c.log.Debug("Process exited", "args", args, "exit_code", result.ExitCode,
		"stdout_lines", len(result.Stdout), "stderr_lines", len(result.Stderr))
	return result, nil
}

// IsAlive is always true for local execution.
func (c *LocalConnection) IsAlive() bool {
	return true
}

// Authenticate checks the password against the hash in the shadow database.
// When the database cannot be read or uses a hash this package cannot verify,
// su(1) is run behind a pseudo-terminal and must ask for the password and
// accept it.
func (c *LocalConnection) Authenticate(ctx context.Context, username string, password *secret.Secret) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: empty username", common.ErrConnectionFailed)
	}

	hash, err := c.lookupHash(username)
	switch {
	case err == nil:
		return c.verifyHash(username, hash, password)
	case errors.Is(err, errUnsupportedHash), errors.Is(err, errNoShadow):
		c.log.Debug("Falling back to su", "user", username, "reason", err)
		return c.verifyWithSu(ctx, username, password)
	default:
		return err
	}
}

var (
	errNoShadow        = errors.New("no readable shadow database")
	errUnsupportedHash = errors.New("unsupported password hash")
)

// crypters maps a crypt(3) prefix to the implementation verifying it.
var crypters = map[string]func() crypt.Crypter{
	sha512_crypt.MagicPrefix: sha512_crypt.New,
	sha256_crypt.MagicPrefix: sha256_crypt.New,
	md5_crypt.MagicPrefix:    md5_crypt.New,
}

// lookupHash returns the password hash of username from the first readable
// file in ShadowFiles.
func (c *LocalConnection) lookupHash(username string) (string, error) {
	for _, path := range c.ShadowFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		defer secret.Wipe(data)

		for _, line := range strings.Split(string(data), "\n") {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, rest, ok := strings.Cut(line, ":")
			if !ok || name != username {
				continue
			}
			hash, _, _ := strings.Cut(rest, ":")
			if hash == "" || strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*") {
				return "", fmt.Errorf("%w: account %s is locked", common.ErrConnectionFailed, username)
			}
			for prefix := range crypters {
				if strings.HasPrefix(hash, prefix) {
					return hash, nil
				}
			}
			return "", errUnsupportedHash
		}
		return "", fmt.Errorf("%w: unknown user %s", common.ErrConnectionFailed, username)
	}
	return "", errNoShadow
}

func (c *LocalConnection) verifyHash(username, hash string, password *secret.Secret) error {
	var crypter crypt.Crypter
	for prefix, newCrypter := range crypters {
		if strings.HasPrefix(hash, prefix) {
			crypter = newCrypter()
			break
		}
	}

	err := password.Access(func(b []byte) error {
		return crypter.Verify(hash, b)
	})
	if err != nil {
		return fmt.Errorf("%w: authentication failed for user %s", common.ErrConnectionFailed, username)
	}
	c.log.Debug("Local authentication succeeded", "user", username, "via", "shadow")
	return nil
}

func (c *LocalConnection) verifyWithSu(ctx context.Context, username string, password *secret.Secret) error {
	ctx, cancel := context.WithTimeout(ctx, suTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.SuCommand, "-s", "/bin/sh", "-c", "true", username)
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("%w: start %s: %v", common.ErrConnectionFailed, c.SuCommand, err)
	}
	defer func() { _ = f.Close() }()

	prompted := false
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		prompted = answerPrompt(f, password)
	}()

	err = cmd.Wait()
	_ = f.Close()
	<-readerDone

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s timed out for user %s", common.ErrConnectionFailed, c.SuCommand, username)
	}
	// su does not ask root for a password, so an exit status alone proves nothing.
	if err == nil && prompted {
		c.log.Debug("Local authentication succeeded", "user", username, "via", "su")
		return nil
	}
	if err == nil {
		return fmt.Errorf("%w: %s did not ask for a password for user %s", common.ErrConnectionFailed, c.SuCommand, username)
	}
	return fmt.Errorf("%w: authentication failed for user %s", common.ErrConnectionFailed, username)
}

// answerPrompt reads the terminal until it sees a password prompt, writes the
// password once and keeps draining until the terminal closes. It reports
// whether the prompt was answered.
func answerPrompt(f io.ReadWriter, password *secret.Secret) bool {
	var seen bytes.Buffer
	prompted := false
	br := bufio.NewReader(f)
	buf := make([]byte, 4096)

	for {
		n, err := br.Read(buf)
		if n > 0 && !prompted {
			seen.Write(buf[:n])
			if strings.Contains(strings.ToLower(seen.String()), "password") {
				prompted = password.Access(func(b []byte) error {
					line := make([]byte, 0, len(b)+1)
					line = append(append(line, b...), '\n')
					defer secret.Wipe(line)
					_, werr := f.Write(line)
					return werr
				}) == nil
			}
		}
		if err != nil {
			return prompted
		}
	}
}

func (c *LocalConnection) Close() error {
	return nil
}
