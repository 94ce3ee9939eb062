package method

import (
	"context"

	"github.com/m-217/passwdctl/passwd/query"
	"github.com/m-217/passwdctl/passwd/schema"
)

const (
	fileGroup        = "/etc/group"
	filePasswd       = "/etc/passwd"
	fileMasterPasswd = "/etc/master.passwd"
	fileShadow       = "/etc/shadow"
)

// readSearch reads the database files directly. Groups and BSD accounts
// come from one file; Linux accounts are /etc/passwd entries extended with
// their /etc/shadow entries.
func (m Method) readSearch(ctx context.Context, class schema.ObjectClass, q *query.Query) ([]*schema.Record, error) {
	switch {
	case class == schema.Group:
		return m.readFile(ctx, class, fileGroup, schema.Get(schema.KindGroup), q)
	case class == schema.Account && m.masterPasswd:
		return m.readFile(ctx, class, fileMasterPasswd, schema.Get(schema.KindMaster), q)
	case class == schema.Account:
		return m.readMerged(ctx, q)
	}
	return nil, invalidClass(class)
}

func (m Method) readFile(ctx context.Context, class schema.ObjectClass, path string, s *schema.Schema, q *query.Query) ([]*schema.Record, error) {
	records, err := m.cat(ctx, class, path, s)
	if err != nil {
		return nil, err
	}
	return filter(records, q), nil
}

func (m Method) readMerged(ctx context.Context, q *query.Query) ([]*schema.Record, error) {
	shadow, err := m.cat(ctx, schema.Account, fileShadow, schema.Get(schema.KindShadow))
	if err != nil {
		return nil, err
	}
	lookup := schema.Index(shadow, schema.AttrName)

	passwd, err := m.cat(ctx, schema.Account, filePasswd, schema.Get(schema.KindPasswd))
	if err != nil {
		return nil, err
	}

	merged := make([]*schema.Record, 0, len(passwd))
	for _, r := range passwd {
		merged = append(merged, schema.Merge(r, lookup, schema.AttrName))
	}
	return filter(merged, q), nil
}

func (m Method) cat(ctx context.Context, class schema.ObjectClass, path string, s *schema.Schema) ([]*schema.Record, error) {
	result, err := m.run(ctx, nil, "cat", path)
	if err != nil {
		return nil, err
	}
	if err := result.Check(0); err != nil {
		return nil, err
	}
	records := m.parseLines(class, s, result.Stdout)
	m.log.Debug("Read database file", "path", path, "records", len(records))
	return records, nil
}
