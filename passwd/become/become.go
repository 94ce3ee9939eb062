// Package become wraps command invocations with a privilege elevation tool.
package become

import (
	"context"
	"fmt"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/connection"
	"github.com/m-217/passwdctl/passwd/secret"
)

// Kind selects the elevation tool.
type Kind int

const (
	// None runs commands as the connected user.
	None Kind = iota
	// Doas prefixes commands with doas(1). It never receives a password.
	Doas
	// Sudo prefixes commands with sudo(8) reading the password from stdin.
	Sudo
)

func (k Kind) String() string {
	switch k {
	case Doas:
		return "doas"
	case Sudo:
		return "sudo"
	default:
		return "none"
	}
}

// ParseKind maps a configured become method name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "", "none":
		return None, nil
	case "doas":
		return Doas, nil
	case "sudo":
		return Sudo, nil
	}
	return None, fmt.Errorf("%w: unknown become method %q", common.ErrConfiguration, name)
}

// Method is a selected elevation variant. The zero value runs commands unchanged.
type Method struct {
	kind     Kind
	password *secret.Secret
}

// New returns the elevation method named by kind. password is only used by sudo.
func New(kind string, password *secret.Secret) (Method, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Method{}, err
	}
	return Method{kind: k, password: password}, nil
}

func (m Method) Kind() Kind {
	return m.kind
}

// Args returns the argument vector actually executed for command and args.
func (m Method) Args(command string, args ...string) []string {
	var argv []string
	switch m.kind {
	case Sudo:
		argv = append(argv, "sudo", "-k", "-S")
	case Doas:
		argv = append(argv, "doas")
	}
	argv = append(argv, command)
	return append(argv, args...)
}

// Execute runs command through conn with elevated rights. For sudo with a
// configured password the password is sent as the first line of stdin and
// the prompt sudo echoes to stderr is removed from the result.
func (m Method) Execute(ctx context.Context, conn connection.Connection, stdin []byte, command string, args ...string) (*connection.Result, error) {
	argv := m.Args(command, args...)

	if m.kind != Sudo {
		return conn.Execute(ctx, stdin, argv...)
	}

	input, err := m.injectPassword(stdin)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(input)

	result, err := conn.Execute(ctx, input, argv...)
	if err != nil {
		return nil, err
	}
	m.removePasswordPrompt(result)
	return result, nil
}

// injectPassword returns the stdin sent to sudo: nil when there is neither
// password nor input, the input when the password is unset or empty,
// otherwise the password, a newline and the input.
func (m Method) injectPassword(stdin []byte) ([]byte, error) {
	if m.password.IsEmpty() {
		if len(stdin) == 0 {
			return nil, nil
		}
		return append([]byte(nil), stdin...), nil
	}

	var input []byte
	err := m.password.Access(func(pw []byte) error {
		input = make([]byte, 0, len(pw)+1+len(stdin))
		input = append(input, pw...)
		input = append(input, '\n')
		input = append(input, stdin...)
		return nil
	})
	return input, err
}

func (m Method) removePasswordPrompt(result *connection.Result) {
	if m.password == nil || len(result.Stderr) == 0 {
		return
	}
	result.Stderr = result.Stderr[1:]
	logger.For("become").Debug("Removed password prompt from stderr", "args", result.Args)
}
