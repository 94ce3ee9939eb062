package method

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/query"
	"github.com/m-217/passwdctl/passwd/schema"
	"github.com/m-217/passwdctl/passwd/secret"
)

const (
	pwCommand       = "pw"
	pwExitDuplicate = 65
)

// pwArgs starts a pw(8) argument list for class and mode. A non-empty uid
// selects the object by name.
func pwArgs(class schema.ObjectClass, mode, uid string) ([]string, *schema.Schema, error) {
	var args []string
	var s *schema.Schema

	switch class {
	case schema.Account:
		args = append(args, "user")
		s = schema.Get(schema.KindMaster)
	case schema.Group:
		args = append(args, "group")
		s = schema.Get(schema.KindGroup)
	default:
		return nil, nil, invalidClass(class)
	}

	args = append(args, mode)
	if uid != "" {
		sw, _ := s.Switch(schema.AttrName)
		args = append(args, sw, uid)
	}
	return args, s, nil
}

func (m Method) pwCreate(ctx context.Context, class schema.ObjectClass, attrs []schema.Attribute) (string, error) {
	name := attributeName(attrs)
	if name == "" {
		return "", fmt.Errorf("%w: Missing attribute loginName", common.ErrInvalidArgument)
	}

	password, err := attributeSecret(attrs)
	if err != nil {
		return "", err
	}

	args, s, err := pwArgs(class, "add", "")
	if err != nil {
		return "", err
	}
	switches, err := schema.Switches(s, attrs, nil)
	if err != nil {
		return "", err
	}
	args = append(args, switches...)

	if class == schema.Account {
		if m.opts.CreateHomeDirectory {
			args = append(args, "-m")
		}
		if m.opts.HomeDirectoryPermissions != "" {
			args = append(args, "-M", m.opts.HomeDirectoryPermissions)
		}
	}

	stdin, err := secretInput(password)
	if err != nil {
		return "", err
	}
	defer secret.Wipe(stdin)
	if len(stdin) > 0 {
		args = append(args, "-h", "0")
	}

	result, err := m.run(ctx, stdin, pwCommand, args...)
	if err != nil {
		return "", err
	}
	if err := result.Expect(0, pwExitDuplicate); err != nil {
		return "", err
	}
	if result.ExitCode == pwExitDuplicate {
		return "", fmt.Errorf("%w: %s %s", common.ErrAlreadyExists, class, name)
	}
	if err := result.ExpectEmptyStderr(); err != nil {
		return "", err
	}

	m.log.Info("Created object", "class", string(class), "name", name)
	return name, nil
}

func (m Method) pwDelete(ctx context.Context, class schema.ObjectClass, uid string) error {
	if uid == "" {
		return fmt.Errorf("%w: missing uid", common.ErrInvalidArgument)
	}
	args, _, err := pwArgs(class, "del", uid)
	if err != nil {
		return err
	}
	if class == schema.Account && m.opts.DeleteHomeDirectory {
		args = append(args, "-r")
	}

	result, err := m.run(ctx, nil, pwCommand, args...)
	if err != nil {
		return err
	}
	if err := result.Check(0); err != nil {
		return err
	}

	m.log.Info("Deleted object", "class", string(class), "name", uid)
	return nil
}

func (m Method) pwUpdate(ctx context.Context, class schema.ObjectClass, uid string, deltas []schema.Delta) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("%w: missing uid", common.ErrInvalidArgument)
	}
	args, s, err := pwArgs(class, "mod", uid)
	if err != nil {
		return "", err
	}

	var (
		replace  []schema.Attribute
		remove   []string
		members  *schema.Delta
		newName  string
		password *secret.Secret
	)

	for i := range deltas {
		d := deltas[i]
		if err := d.Validate(); err != nil {
			return "", err
		}

		switch {
		case d.Name == schema.AttrName:
			if v, ok := d.Value(); ok {
				newName = fmt.Sprint(v)
			}
		case d.Name == schema.AttrMembers && class == schema.Group:
			members = &d
		case d.Name == schema.AttrPassword:
			v, ok := d.Value()
			if !ok {
				m.log.Warn("Ignoring removal of password values", "name", uid)
				continue
			}
			sec, isSecret := v.(*secret.Secret)
			if !isSecret {
				return "", fmt.Errorf("%w: password must be a secret", common.ErrInvalidArgument)
			}
			password = sec
		case len(d.Remove) > 0:
			remove = append(remove, d.Name)
		default:
			if v, ok := d.Value(); ok {
				replace = append(replace, schema.NewAttribute(d.Name, v))
			} else if d.IsReplace() {
				remove = append(remove, d.Name)
			}
		}
	}

	switches, err := schema.Switches(s, replace, remove)
	if err != nil {
		return "", err
	}
	args = append(args, switches...)

	if newName != "" {
		args = append(args, "-l", schema.EscapeValue(newName))
	}

	if members != nil {
		switch {
		case members.IsReplace():
			args = append(args, "-M", schema.JoinValues(members.Replace))
		default:
			if len(members.Add) > 0 {
				args = append(args, "-m", schema.JoinValues(members.Add))
			}
			if len(members.Remove) > 0 {
				args = append(args, "-d", schema.JoinValues(members.Remove))
			}
		}
	}

	stdin, err := secretInput(password)
	if err != nil {
		return "", err
	}
	defer secret.Wipe(stdin)
	if len(stdin) > 0 {
		args = append(args, "-h", "0")
	}

	result, err := m.run(ctx, stdin, pwCommand, args...)
	if err != nil {
		return "", err
	}
	if err := result.Check(0); err != nil {
		return "", err
	}

	m.log.Info("Updated object", "class", string(class), "name", uid, "renamed", newName != "")
	if newName != "" {
		return newName, nil
	}
	return uid, nil
}

func (m Method) pwSearch(ctx context.Context, class schema.ObjectClass, q *query.Query) ([]*schema.Record, error) {
	args, s, err := pwArgs(class, "show", "")
	if err != nil {
		return nil, err
	}
	args = append(args, "-a")

	result, err := m.run(ctx, nil, pwCommand, args...)
	if err != nil {
		return nil, err
	}
	if err := result.Check(0); err != nil {
		return nil, err
	}

	records := filter(m.parseLines(class, s, result.Stdout), q)
	m.log.Debug("Search finished", "class", string(class), "matches", len(records))
	return records, nil
}

// attributeName returns the first identity value in attrs.
func attributeName(attrs []schema.Attribute) string {
	for _, a := range attrs {
		if a.Name != schema.AttrName {
			continue
		}
		if v := a.First(); v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// attributeSecret returns the password in attrs, or nil.
func attributeSecret(attrs []schema.Attribute) (*secret.Secret, error) {
	for _, a := range attrs {
		if a.Name != schema.AttrPassword {
			continue
		}
		v := a.First()
		if v == nil {
			return nil, nil
		}
		sec, ok := v.(*secret.Secret)
		if !ok {
			return nil, fmt.Errorf("%w: password must be a secret", common.ErrInvalidArgument)
		}
		return sec, nil
	}
	return nil, nil
}

// secretInput copies the password bytes for use as stdin. The caller wipes
// the returned slice.
func secretInput(password *secret.Secret) ([]byte, error) {
	if password == nil {
		return nil, nil
	}
	var input []byte
	err := password.Access(func(b []byte) error {
		if len(b) > 0 {
			input = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrInvalidArgument, err)
	}
	return input, nil
}
