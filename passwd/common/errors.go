// Package common holds the error kinds shared by every layer of the connector.
package common

import "errors"

var (
	// ErrConnectionFailed reports a failure establishing or authenticating a transport session.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTransportBroken reports an I/O failure, an unexpected exit code or unexpected
	// error output while an operation was running.
	ErrTransportBroken = errors.New("transport broken")

	// ErrInvalidArgument reports a caller error: unknown field, malformed value or a
	// missing required attribute.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists reports a naming conflict on create.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupported reports an operation the configured method does not implement.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrConfiguration reports an invalid connector configuration.
	ErrConfiguration = errors.New("invalid configuration")
)

// IsFatal reports whether err is one of the kinds a caller cannot branch around.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrTransportBroken)
}
