// Package connectiontest provides Connection implementations for tests.
package connectiontest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/m-217/passwdctl/passwd/connection"
	"github.com/m-217/passwdctl/passwd/secret"
)

// Call is one recorded invocation.
type Call struct {
	Args  []string
	Stdin string
}

// Response scripts the outcome of one invocation. A non-nil Err is returned
// instead of a result.
type Response struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
	Err      error
}

// Fake records every invocation and answers from a queue of responses. When
// the queue is empty, Handler is consulted, then a zero exit code with no
// output is returned.
type Fake struct {
	Handler func(args []string, stdin []byte) Response
	Dead    bool
	AuthErr error

	mu        sync.Mutex
	calls     []Call
	responses []Response
	closed    bool
	authUsers []string
}

var _ connection.Connection = (*Fake)(nil)

// Push queues responses in order.
func (f *Fake) Push(responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *Fake) Execute(_ context.Context, stdin []byte, args ...string) (*connection.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Args: append([]string(nil), args...), Stdin: string(stdin)})

	var resp Response
	switch {
	case len(f.responses) > 0:
		resp = f.responses[0]
		f.responses = f.responses[1:]
	case f.Handler != nil:
		resp = f.Handler(args, stdin)
	}
	f.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	r := connection.NewResult(args)
	r.ExitCode = resp.ExitCode
	r.Stdout = append([]string(nil), resp.Stdout...)
	r.Stderr = append([]string(nil), resp.Stderr...)
	return r, nil
}

func (f *Fake) IsAlive() bool {
	return !f.Dead
}

func (f *Fake) Authenticate(_ context.Context, username string, _ *secret.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authUsers = append(f.authUsers, username)
	return f.AuthErr
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns the invocations seen so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastCall returns the most recent invocation, or an empty Call.
func (f *Fake) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// AuthUsers returns the user names passed to Authenticate.
func (f *Fake) AuthUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authUsers...)
}

// Mock is a testify mock of connection.Connection. Execute is matched on
// (stdin as string, args).
type Mock struct {
	mock.Mock
}

var _ connection.Connection = (*Mock)(nil)

func (m *Mock) Execute(_ context.Context, stdin []byte, args ...string) (*connection.Result, error) {
	ret := m.Called(string(stdin), args)
	r, _ := ret.Get(0).(*connection.Result)
	return r, ret.Error(1)
}

func (m *Mock) IsAlive() bool {
	return m.Called().Bool(0)
}

func (m *Mock) Authenticate(_ context.Context, username string, _ *secret.Secret) error {
	return m.Called(username).Error(0)
}

func (m *Mock) Close() error {
	return m.Called().Error(0)
}
