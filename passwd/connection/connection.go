// Package connection runs argument vectors on the managed host, either as a
// local process or over an SSH session, and collects exit code and output.
package connection

import (
	"context"
	"fmt"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/secret"
)

// Connection is an open execution surface. It supports one invocation at a
// time; callers sharing a Connection must serialize their calls.
type Connection interface {
	// Execute runs args verbatim, feeding stdin when it is non-empty.
	Execute(ctx context.Context, stdin []byte, args ...string) (*Result, error)

	// IsAlive probes the transport without side effects.
	IsAlive() bool

	// Authenticate checks end-user credentials against the host. It is not
	// used to run privileged commands.
	Authenticate(ctx context.Context, username string, password *secret.Secret) error

	Close() error
}

// Result is the outcome of one invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   []string
	Stderr   []string
}

// NewResult returns a Result whose exit code is still unset (-1).
func NewResult(args []string) *Result {
	return &Result{Args: args, ExitCode: -1}
}

// Expect fails with ErrTransportBroken unless the exit code is one of codes.
func (r *Result) Expect(codes ...int) error {
	for _, code := range codes {
		if r.ExitCode == code {
			return nil
		}
	}
	return fmt.Errorf("%w: expected exit codes %v, got %d from %v", common.ErrTransportBroken, codes, r.ExitCode, r.Args)
}

// ExpectEmptyStderr fails with ErrTransportBroken when anything was written to stderr.
func (r *Result) ExpectEmptyStderr() error {
	if len(r.Stderr) != 0 {
		return fmt.Errorf("%w: expected empty stderr from %v, got %q", common.ErrTransportBroken, r.Args, r.Stderr)
	}
	return nil
}

// Check combines Expect and ExpectEmptyStderr.
func (r *Result) Check(codes ...int) error {
	if err := r.Expect(codes...); err != nil {
		return err
	}
	return r.ExpectEmptyStderr()
}
