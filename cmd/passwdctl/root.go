package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/m-217/passwdctl/logger"
	"github.com/m-217/passwdctl/passwd"
	"github.com/m-217/passwdctl/passwd/config"
	"github.com/m-217/passwdctl/passwd/secret"
)

const defaultConfigPath = "/usr/local/etc/passwdctl.ini"

type flags struct {
	ConfigPath        string
	Debug             bool
	LogFormat         string
	AskPassword       bool
	AskBecomePassword bool
	Output            string
}

// cli holds the global flags and the hooks tests replace.
type cli struct {
	flags flags
	out   io.Writer
	log   logger.Logger

	// prompt reads a secret from the terminal.
	prompt func(label string) (*secret.Secret, error)
	// open creates the connector for a loaded configuration.
	open func(ctx context.Context, cfg *config.Config) (*passwd.Connector, error)
}

func newCLI() *cli {
	return &cli{
		out:    os.Stdout,
		log:    logger.For("cli"),
		prompt: promptTerminal,
		open: func(ctx context.Context, cfg *config.Config) (*passwd.Connector, error) {
			return passwd.New(ctx, cfg)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "passwdctl",
		Short: "Manage Unix accounts and groups on local or remote hosts",
		Long: `passwdctl creates, updates, deletes and searches accounts and groups by
driving pw(8) or reading the account databases, locally or over SSH, with
optional sudo or doas elevation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if c.flags.Debug {
				level = "debug"
			}
			return logger.Configure(level, c.flags.LogFormat, nil)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.ConfigPath, "config", "c", defaultConfigPath, "Path to the INI configuration file")
	pf.BoolVar(&c.flags.Debug, "debug", false, "Enable debug log level")
	pf.StringVar(&c.flags.LogFormat, "log-format", "text", "Log format (text|json)")
	pf.BoolVar(&c.flags.AskPassword, "ask-password", false, "Prompt for the connection password")
	pf.BoolVar(&c.flags.AskBecomePassword, "ask-become-password", false, "Prompt for the elevation password")
	pf.StringVarP(&c.flags.Output, "output", "o", "table", "Output format (table|json|yaml)")

	root.AddCommand(
		c.testCmd(),
		c.schemaCmd(),
		c.searchCmd(),
		c.createCmd(),
		c.updateCmd(),
		c.deleteCmd(),
		c.authenticateCmd(),
	)
	root.SetOut(c.out)
	return root
}

// connect loads the configuration, asks for requested secrets and opens a connector.
func (c *cli) connect(ctx context.Context) (*passwd.Connector, error) {
	cfg, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	if c.flags.AskPassword {
		if cfg.Password, err = c.prompt("Enter the password: "); err != nil {
			return nil, err
		}
	}
	if c.flags.AskBecomePassword {
		if cfg.BecomePassword, err = c.prompt("Enter the become password: "); err != nil {
			return nil, err
		}
	}

	c.log.Debug("Loaded configuration", "path", c.flags.ConfigPath, "config", cfg.String())
	return c.open(ctx, cfg)
}

// withConnector runs fn with an open connector and closes it afterwards.
func (c *cli) withConnector(cmd *cobra.Command, fn func(ctx context.Context, conn *passwd.Connector) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.log.Warn("Failed to close connection", "error", err)
		}
	}()

	return fn(ctx, conn)
}

func promptTerminal(label string) (*secret.Secret, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	defer secret.Wipe(b)
	return secret.New(b), nil
}
