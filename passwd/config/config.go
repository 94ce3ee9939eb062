// Package config loads and validates the connector configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	multierror "github.com/hashicorp/go-multierror"
	"gopkg.in/ini.v1"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/secret"
)

const (
	ConnectionTypeLocal = "local"
	ConnectionTypeSSH   = "ssh"

	MethodPw      = "pw"
	MethodUserAdd = "useradd"

	SubMethodBSD   = "bsd"
	SubMethodLinux = "linux"

	BecomeMethodDoas = "doas"
	BecomeMethodNone = "none"
	BecomeMethodSudo = "sudo"

	DefaultSSHPort = 22

	// HostKeyAny disables host key verification.
	HostKeyAny = "*"
)

// Config holds everything needed to open a channel and pick the
// elevation and account management methods.
type Config struct {
	// Connection
	ConnectionType string         `ini:"type" validate:"oneof=local ssh"`
	HostName       string         `ini:"host_name"`
	Port           int            `ini:"port" validate:"min=1,max=65535"`
	HostKey        string         `ini:"host_key"`
	UserName       string         `ini:"user_name"`
	Password       *secret.Secret `ini:"-"`
	PrivateKey     string         `ini:"private_key"`

	// Method
	Method         string         `ini:"method" validate:"required,oneof=pw useradd:bsd useradd:linux"`
	BecomeMethod   string         `ini:"become_method" validate:"oneof=doas none sudo"`
	BecomePassword *secret.Secret `ini:"-"`

	// Home directories
	CreateHomeDirectory      bool   `ini:"create"`
	DeleteHomeDirectory      bool   `ini:"delete"`
	HomeDirectoryPermissions string `ini:"permissions" validate:"omitempty,numeric,len=3|len=4"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		ConnectionType: ConnectionTypeLocal,
		Port:           DefaultSSHPort,
		BecomeMethod:   BecomeMethodNone,
	}
}

var validate = validator.New()

// Validate checks all properties and reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
		}
		for _, fe := range fieldErrs {
			result = multierror.Append(result, fmt.Errorf("property %s fails rule %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}

	if c.ConnectionType == ConnectionTypeSSH {
		if strings.TrimSpace(c.HostName) == "" {
			result = multierror.Append(result, errors.New("the hostName property is mandatory for SSH connections"))
		}
		if strings.TrimSpace(c.UserName) == "" {
			result = multierror.Append(result, errors.New("the userName property is mandatory for SSH connections"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return nil
}

// SubMethod returns the part after the colon, e.g. "linux", or "".
func (c *Config) SubMethod() string {
	_, sub, _ := strings.Cut(c.Method, ":")
	return sub
}

// UsesMasterPasswd reports whether accounts are described by the BSD master.passwd layout.
func (c *Config) UsesMasterPasswd() bool {
	return c.Method == MethodPw || c.SubMethod() == SubMethodBSD
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{connectionType=%s, hostName=%s, port=%d, hostKey=%s, userName=%s, password=%v, "+
		"privateKey=%s, method=%s, becomeMethod=%s, becomePassword=%v, createHomeDirectory=%t, "+
		"deleteHomeDirectory=%t, homeDirectoryPermissions=%s}",
		c.ConnectionType, c.HostName, c.Port, c.HostKey, c.UserName, c.Password,
		c.PrivateKey, c.Method, c.BecomeMethod, c.BecomePassword, c.CreateHomeDirectory,
		c.DeleteHomeDirectory, c.HomeDirectoryPermissions)
}

// Load reads an INI file. See Parse for the layout.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrConfiguration, path, err)
	}
	return fromFile(f)
}

// Parse reads INI data laid out as
//
//	[connection]
//	type = ssh
//	host_name = db1.example.org
//	port = 22
//	host_key = ssh-ed25519 AAAA...
//	user_name = admin
//	password = ...
//	private_key = /home/admin/.ssh/id_ed25519
//
//	[method]
//	method = pw
//	become_method = sudo
//	become_password = ...
//
//	[home]
//	create = true
//	delete = false
//	permissions = 0750
func Parse(data []byte) (*Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (*Config, error) {
	c := New()

	for _, name := range []string{"connection", "method", "home"} {
		if err := f.Section(name).MapTo(c); err != nil {
			return nil, fmt.Errorf("%w: section [%s]: %v", common.ErrConfiguration, name, err)
		}
	}

	if key := f.Section("connection").Key("password"); key.String() != "" {
		c.Password = secret.FromString(key.String())
	}
	if key := f.Section("method").Key("become_password"); key.String() != "" {
		c.BecomePassword = secret.FromString(key.String())
	}

	return c, nil
}
