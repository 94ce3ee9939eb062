package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m-217/passwdctl/passwd"
	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/query"
	"github.com/m-217/passwdctl/passwd/schema"
)

func (c *cli) testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check the connection and the management tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				if err := conn.CheckAlive(); err != nil {
					return err
				}
				if err := conn.Test(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "OK")
				return nil
			})
		},
	}
}

type schemaTable []schema.ObjectClassInfo

func (s schemaTable) Headers() []string {
	return []string{"CLASS", "ATTRIBUTE", "NATIVE", "TYPE", "FLAGS"}
}

func (s schemaTable) Rows() [][]string {
	var rows [][]string
	for _, info := range s {
		for _, a := range info.Attributes {
			var flags []string
			if a.Required {
				flags = append(flags, "required")
			}
			if a.MultiValued {
				flags = append(flags, "multivalued")
			}
			if !a.Readable {
				flags = append(flags, "write-only")
			}
			rows = append(rows, []string{string(info.Class), a.Name, a.NativeName, a.Type, strings.Join(flags, ",")})
		}
	}
	return rows
}

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Describe the account and group attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				infos, err := conn.Schema()
				if err != nil {
					return err
				}
				return printOutput(c.out, c.flags.Output, schemaTable(infos))
			})
		},
	}
}

// recordTable renders search results with one column per attribute.
type recordTable struct {
	columns []string
	records []map[string]any
}

func newRecordTable(records []*schema.Record) *recordTable {
	t := &recordTable{}
	seen := map[string]bool{}
	for _, r := range records {
		for _, n := range r.Names() {
			if !seen[n] {
				seen[n] = true
				t.columns = append(t.columns, n)
			}
		}
		t.records = append(t.records, r.Map())
	}
	return t
}

func (t *recordTable) Headers() []string {
	return t.columns
}

func (t *recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.records))
	for _, m := range t.records {
		row := make([]string, len(t.columns))
		for i, col := range t.columns {
			switch v := m[col].(type) {
			case nil:
			case []any:
				parts := make([]string, len(v))
				for j, p := range v {
					parts[j] = fmt.Sprint(p)
				}
				row[i] = strings.Join(parts, ",")
			default:
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (c *cli) searchCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "search <account|group>",
		Short: "List accounts or groups matching a filter",
		Example: `  passwdctl search account --filter 'uid>1000,loginShell$=sh'
  passwdctl search group --filter members=alice -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := schema.ParseObjectClass(args[0])
			if err != nil {
				return err
			}
			q, err := query.Parse(filter)
			if err != nil {
				return err
			}

			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				var records []*schema.Record
				err := conn.Search(ctx, class, q, func(r *schema.Record) bool {
					records = append(records, r)
					return true
				})
				if err != nil {
					return err
				}

				t := newRecordTable(records)
				if strings.EqualFold(c.flags.Output, "table") || c.flags.Output == "" {
					return printOutput(c.out, c.flags.Output, t)
				}
				return printOutput(c.out, c.flags.Output, t.records)
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter expression, e.g. 'uid>1000,comment*=ops'")
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var (
		attrs       []string
		setPassword bool
	)
	cmd := &cobra.Command{
		Use:     "create <account|group> --attr name=value...",
		Short:   "Create an account or group",
		Example: `  passwdctl create account --attr __NAME__=alice --attr uid=1001 --attr gid=1001 --set-password`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := schema.ParseObjectClass(args[0])
			if err != nil {
				return err
			}
			parsed, err := parsePairs(class, attrs)
			if err != nil {
				return err
			}
			if setPassword {
				pw, err := c.prompt("Enter the new password: ")
				if err != nil {
					return err
				}
				defer pw.Destroy()
				parsed = append(parsed, schema.NewAttribute(schema.AttrPassword, pw))
			}

			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				uid, err := conn.Create(ctx, class, parsed)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Created %s\n", uid)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "Attribute as name=value, repeat for multiple values")
	cmd.Flags().BoolVar(&setPassword, "set-password", false, "Prompt for the password of the new object")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var (
		set, add, remove, clears []string
		rename                   string
		setPassword              bool
	)
	cmd := &cobra.Command{
		Use:   "update <account|group> <uid>",
		Short: "Change attributes of an account or group",
		Example: `  passwdctl update group ops --add members=carol --remove members=dave
  passwdctl update account alice --set loginShell=/bin/zsh --rename alicia`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := schema.ParseObjectClass(args[0])
			if err != nil {
				return err
			}
			deltas, err := buildDeltas(class, set, add, remove, clears)
			if err != nil {
				return err
			}
			if rename != "" {
				deltas = append(deltas, schema.ReplaceDelta(schema.AttrName, rename))
			}
			if setPassword {
				pw, err := c.prompt("Enter the new password: ")
				if err != nil {
					return err
				}
				defer pw.Destroy()
				deltas = append(deltas, schema.ReplaceDelta(schema.AttrPassword, pw))
			}
			if len(deltas) == 0 {
				return fmt.Errorf("%w: nothing to update", common.ErrInvalidArgument)
			}

			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				uid, err := conn.UpdateDelta(ctx, class, args[1], deltas)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Updated %s\n", uid)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&set, "set", nil, "Replace values, as name=value")
	f.StringArrayVar(&add, "add", nil, "Add a value, as name=value")
	f.StringArrayVar(&remove, "remove", nil, "Remove a value, as name=value")
	f.StringArrayVar(&clears, "clear", nil, "Clear an attribute by name")
	f.StringVar(&rename, "rename", "", "New name")
	f.BoolVar(&setPassword, "set-password", false, "Prompt for a new password")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account|group> <uid>",
		Short: "Delete an account or group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := schema.ParseObjectClass(args[0])
			if err != nil {
				return err
			}
			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				if err := conn.Delete(ctx, class, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Deleted %s\n", args[1])
				return nil
			})
		},
	}
}

func (c *cli) authenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authenticate <user>",
		Short: "Verify the password of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.prompt(fmt.Sprintf("Password for %s: ", args[0]))
			if err != nil {
				return err
			}
			defer pw.Destroy()

			return c.withConnector(cmd, func(ctx context.Context, conn *passwd.Connector) error {
				uid, err := conn.Authenticate(ctx, schema.Account, args[0], pw)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Authenticated %s\n", uid)
				return nil
			})
		},
	}
}

// layoutFor returns the layout whose field types apply to values given on
// the command line.
func layoutFor(class schema.ObjectClass) *schema.Schema {
	if class == schema.Group {
		return schema.Get(schema.KindGroup)
	}
	return schema.Get(schema.KindMaster)
}

// parsePairs splits name=value arguments and groups the values by name,
// keeping the order in which names first appear.
func parsePairs(class schema.ObjectClass, pairs []string) ([]schema.Attribute, error) {
	s := layoutFor(class)
	index := map[string]int{}
	var attrs []schema.Attribute

	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", common.ErrInvalidArgument, p)
		}
		if name == schema.AttrPassword {
			return nil, fmt.Errorf("%w: use --set-password to set a password", common.ErrInvalidArgument)
		}
		v, err := s.Value(name, raw)
		if err != nil {
			return nil, err
		}
		i, seen := index[name]
		if !seen {
			index[name] = len(attrs)
			attrs = append(attrs, schema.Attribute{Name: name})
			i = len(attrs) - 1
		}
		attrs[i].Values = append(attrs[i].Values, v)
	}
	return attrs, nil
}

// buildDeltas turns the update flags into one delta per attribute.
func buildDeltas(class schema.ObjectClass, set, add, remove, clears []string) ([]schema.Delta, error) {
	byName := map[string]*schema.Delta{}
	var order []string
	get := func(name string) *schema.Delta {
		d, ok := byName[name]
		if !ok {
			d = &schema.Delta{Name: name}
			byName[name] = d
			order = append(order, name)
		}
		return d
	}

	setAttrs, err := parsePairs(class, set)
	if err != nil {
		return nil, err
	}
	for _, a := range setAttrs {
		get(a.Name).Replace = a.Values
	}
	for _, name := range clears {
		get(name).Replace = []any{}
	}

	addAttrs, err := parsePairs(class, add)
	if err != nil {
		return nil, err
	}
	for _, a := range addAttrs {
		d := get(a.Name)
		d.Add = append(d.Add, a.Values...)
	}

	removeAttrs, err := parsePairs(class, remove)
	if err != nil {
		return nil, err
	}
	for _, a := range removeAttrs {
		d := get(a.Name)
		d.Remove = append(d.Remove, a.Values...)
	}

	deltas := make([]schema.Delta, 0, len(order))
	for _, name := range order {
		d := *byName[name]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}
