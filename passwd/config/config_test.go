package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/secret"
)

const sample = `[connection]
type = ssh
host_name = bsd1.example.org
port = 2222
host_key = *
user_name = admin
password = hunter2

[method]
method = pw
become_method = sudo
become_password = s3cret

[home]
create = true
permissions = 0750
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ConnectionTypeSSH, c.ConnectionType)
	assert.Equal(t, "bsd1.example.org", c.HostName)
	assert.Equal(t, 2222, c.Port)
	assert.Equal(t, HostKeyAny, c.HostKey)
	assert.Equal(t, "admin", c.UserName)
	assert.Equal(t, MethodPw, c.Method)
	assert.Equal(t, BecomeMethodSudo, c.BecomeMethod)
	assert.True(t, c.CreateHomeDirectory)
	assert.False(t, c.DeleteHomeDirectory)
	assert.Equal(t, "0750", c.HomeDirectoryPermissions)

	require.NotNil(t, c.Password)
	_ = c.Password.Access(func(b []byte) error {
		assert.Equal(t, "hunter2", string(b))
		return nil
	})
	assert.Equal(t, 6, c.BecomePassword.Len())
	assert.NoError(t, c.Validate())
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("[method]\nmethod = useradd:linux\n"))
	require.NoError(t, err)

	assert.Equal(t, ConnectionTypeLocal, c.ConnectionType)
	assert.Equal(t, DefaultSSHPort, c.Port)
	assert.Equal(t, BecomeMethodNone, c.BecomeMethod)
	assert.Nil(t, c.Password)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd.ini")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bsd1.example.org", c.HostName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"local defaults", func(c *Config) {}, true},
		{"missing method", func(c *Config) { c.Method = "" }, false},
		{"unknown method", func(c *Config) { c.Method = "useradd" }, false},
		{"unknown become method", func(c *Config) { c.BecomeMethod = "su" }, false},
		{"unknown connection type", func(c *Config) { c.ConnectionType = "telnet" }, false},
		{"ssh without host", func(c *Config) {
			c.ConnectionType = ConnectionTypeSSH
			c.UserName = "admin"
		}, false},
		{"ssh without user", func(c *Config) {
			c.ConnectionType = ConnectionTypeSSH
			c.HostName = "h"
		}, false},
		{"ssh complete", func(c *Config) {
			c.ConnectionType = ConnectionTypeSSH
			c.HostName = "h"
			c.UserName = "admin"
			c.Password = secret.FromString("pw")
		}, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, false},
		{"bad permissions", func(c *Config) { c.HomeDirectoryPermissions = "rwx" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Method = MethodPw
			tt.mutate(c)

			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, common.ErrConfiguration), "got %v", err)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	c := New()
	c.ConnectionType = ConnectionTypeSSH
	c.BecomeMethod = "su"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Method")
	assert.Contains(t, err.Error(), "BecomeMethod")
	assert.Contains(t, err.Error(), "hostName")
	assert.Contains(t, err.Error(), "userName")
}

func TestMethodParts(t *testing.T) {
	c := New()
	c.Method = "useradd:bsd"
	assert.Equal(t, SubMethodBSD, c.SubMethod())
	assert.True(t, c.UsesMasterPasswd())

	c.Method = "useradd:linux"
	assert.False(t, c.UsesMasterPasswd())

	c.Method = MethodPw
	assert.Equal(t, "", c.SubMethod())
	assert.True(t, c.UsesMasterPasswd())
}

func TestStringRedactsSecrets(t *testing.T) {
	c := New()
	c.Password = secret.FromString("hunter2")
	c.BecomePassword = secret.FromString("s3cret")

	s := c.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cret")
	assert.Contains(t, s, "[redacted]")
}
