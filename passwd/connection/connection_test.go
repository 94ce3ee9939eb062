package connection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-217/passwdctl/passwd/common"
)

func TestResultExpect(t *testing.T) {
	r := NewResult([]string{"pw", "user", "add"})
	assert.Equal(t, -1, r.ExitCode)

	r.ExitCode = 65
	assert.NoError(t, r.Expect(0, 65))

	err := r.Expect(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransportBroken)
	assert.Contains(t, err.Error(), "got 65")
}

func TestResultCheck(t *testing.T) {
	r := NewResult([]string{"id"})
	r.ExitCode = 0
	assert.NoError(t, r.Check(0))

	r.Stderr = []string{"warning: something"}
	err := r.Check(0)
	assert.ErrorIs(t, err, common.ErrTransportBroken)
	assert.Contains(t, err.Error(), "warning: something")
}

func TestReadLines(t *testing.T) {
	var lines []string
	err := readLines(strings.NewReader("a\r\n\nb\nlast"), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b", "last"}, lines)
}

func TestReadLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 200000)
	var lines []string
	require.NoError(t, readLines(strings.NewReader(long+"\n"), func(s string) { lines = append(lines, s) }))
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], 200000)
}

func TestCollectKeepsStreamsApart(t *testing.T) {
	r := NewResult([]string{"x"})
	fed := false
	err := collect(r, strings.NewReader("out1\nout2\n"), strings.NewReader("err1\n"), func() error {
		fed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, fed)
	assert.Equal(t, []string{"out1", "out2"}, r.Stdout)
	assert.Equal(t, []string{"err1"}, r.Stderr)
}
