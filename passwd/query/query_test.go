package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-217/passwdctl/passwd/common"
	"github.com/m-217/passwdctl/passwd/schema"
)

func alice(t *testing.T) *schema.Record {
	t.Helper()
	r, err := schema.ParseLine(schema.Account, schema.Get(schema.KindPasswd), "alice:x:1001:1001:Alice A:/home/alice:/bin/bash")
	require.NoError(t, err)
	return r
}

func TestNilQueryMatchesAll(t *testing.T) {
	var q *Query
	assert.True(t, q.Matches(alice(t)))
	assert.True(t, New(nil).Matches(alice(t)))
	assert.False(t, New(nil).Matches(nil))
	assert.Equal(t, "ALL", q.String())
}

func TestBuilders(t *testing.T) {
	r := alice(t)

	cases := []struct {
		filter Filter
		want   bool
	}{
		{Equal(schema.AttrName, "alice"), true},
		{Equal(schema.AttrUID, "alice"), true},
		{Equal("gid", 1001), true},
		{Equal("gid", "1001"), true},
		{Equal("gid", 1002), false},
		{Equal("missing", "x"), false},
		{StartsWith("homeDirectory", "/home/"), true},
		{EndsWith("loginShell", "zsh"), false},
		{Contains("comment", "ce A"), true},
		{GreaterThan("uid", 1000), true},
		{LessThan("gid", 1000), false},
		{GreaterThan("comment", 1), false},
		{And(Equal(schema.AttrName, "alice"), GreaterThan("gid", 1000)), true},
		{And(Equal(schema.AttrName, "alice"), GreaterThan("gid", 5000)), false},
		{Or(Equal(schema.AttrName, "bob"), Equal("gid", 1001)), true},
		{Or(), false},
		{And(), true},
		{Not(Equal(schema.AttrName, "bob")), true},
		{All(), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.filter.Matches(r), tc.filter.String())
	}
}

func TestMembersMatchAnyValue(t *testing.T) {
	r, err := schema.ParseLine(schema.Group, schema.Get(schema.KindGroup), "wheel:*:0:root,alice")
	require.NoError(t, err)
	assert.True(t, Equal(schema.AttrMembers, "alice").Matches(r))
	assert.False(t, Equal(schema.AttrMembers, "bob").Matches(r))
}

func TestParse(t *testing.T) {
	r := alice(t)

	cases := map[string]bool{
		"":                                   true,
		"__NAME__=alice":                     true,
		"__NAME__!=alice":                    false,
		"__NAME__^=al, gid>1000":             true,
		"loginShell$=bash,uid<1001":          false,
		"comment*=Alice":                     true,
		"comment=Alice A":                    true,
		"homeDirectory=/home/alice,gid<2000": true,
	}
	for expr, want := range cases {
		q, err := Parse(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, want, q.Matches(r), expr)
	}
}

func TestParseEscapedComma(t *testing.T) {
	r := schema.NewRecord(schema.Account)
	r.Set(schema.AttrName, "x")
	r.Set("comment", "Smith, John")

	q, err := Parse(`comment=Smith\, John`)
	require.NoError(t, err)
	assert.True(t, q.Matches(r))
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{"alice", "=x", "gid>abc", "gid<"} {
		_, err := Parse(expr)
		assert.ErrorIs(t, err, common.ErrInvalidArgument, expr)
	}
}

func TestString(t *testing.T) {
	q, err := Parse("__NAME__=alice,gid>10")
	require.NoError(t, err)
	assert.Equal(t, "(__NAME__=alice AND gid>10)", q.String())
}
