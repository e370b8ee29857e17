package cushion

import (
	"bytes"
	"testing"

	"github.com/google/orderedcode"
	"github.com/stretchr/testify/require"
)

func mustRowKey(t *testing.T, emitKey []interface{}, id string) []byte {
	t.Helper()
	k, err := viewRowKey("ns", "v", emitKey, id)
	require.NoError(t, err)
	return k
}

func TestKeyOrder(t *testing.T) {
	require := require.New(t)

	require.True(bytes.Compare(dockey("ns", "alice"), dockey("ns", "bob")) < 0)
	require.True(bytes.HasPrefix(dockey("ns", "alice"), docPrefix("ns")))

	a := mustRowKey(t, []interface{}{"Alice"}, "alice")
	b := mustRowKey(t, []interface{}{"Bob"}, "bob")
	require.True(bytes.Compare(a, b) < 0)
	require.True(bytes.HasPrefix(a, viewPrefix("ns", "v")))
}

func TestNumericKeyOrder(t *testing.T) {
	require := require.New(t)

	two := mustRowKey(t, []interface{}{float64(2)}, "x")
	ten := mustRowKey(t, []interface{}{float64(10)}, "x")
	require.True(bytes.Compare(two, ten) < 0)

	neg := mustRowKey(t, []interface{}{float64(-1)}, "x")
	require.True(bytes.Compare(neg, two) < 0)
}

func TestEncodedTuplePrefixing(t *testing.T) {
	require := require.New(t)

	// a shorter tuple is a byte prefix of every tuple extending it, which
	// is what prefix and exact-key scans rely on
	short, err := appendEmitKey(viewPrefix("ns", "v"), []interface{}{"engineering"})
	require.NoError(err)
	long := mustRowKey(t, []interface{}{"engineering", "Alice"}, "alice")
	require.True(bytes.HasPrefix(long, short))

	other := mustRowKey(t, []interface{}{"sales", "Charlie"}, "charlie")
	require.False(bytes.HasPrefix(other, short))
}

func TestRefKeyShape(t *testing.T) {
	require := require.New(t)

	rk := refKey("ns", "by-name", "alice")
	require.True(bytes.HasPrefix(rk, refPrefix("ns", "by-name")))

	var ns, space, view, id string
	rest, err := orderedcode.Parse(string(rk), &ns, &space, &view, &id)
	require.NoError(err)
	require.Empty(rest)
	require.Equal("viewref", space)
	require.Equal("alice", id)
}

func TestNamespacesDisjoint(t *testing.T) {
	require := require.New(t)

	require.False(bytes.HasPrefix(dockey("other", "alice"), docPrefix("ns")))
	require.False(bytes.HasPrefix(viewPrefix("other", "v"), viewPrefix("ns", "v")))
}

func TestPrefixSuccessor(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte{0x01, 0x03}, prefixSuccessor([]byte{0x01, 0x02}))
	require.Equal([]byte{0x02}, prefixSuccessor([]byte{0x01, 0xff}))
	require.Nil(prefixSuccessor([]byte{0xff, 0xff}))

	p := viewPrefix("ns", "v")
	s := prefixSuccessor(p)
	require.True(bytes.Compare(p, s) < 0)
	require.True(bytes.Compare(mustRowKey(t, []interface{}{"z"}, "z"), s) < 0)
}

func TestNormalizeParts(t *testing.T) {
	require := require.New(t)

	parts, err := normalizeParts([]interface{}{"a", 3, int64(4), float32(1.5), true, []byte{0xff}})
	require.NoError(err)
	require.Equal([]interface{}{"a", float64(3), float64(4), float64(1.5), true, []byte{0xff}}, parts)

	_, err = normalizeParts([]interface{}{struct{}{}})
	require.ErrorIs(err, ErrInvalidEmitKey)

	_, err = normalizeParts([]interface{}{nil})
	require.ErrorIs(err, ErrInvalidEmitKey)
}
