package cushion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShapePrecedence(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name  string
		build func() *Query
		want  ShapeType
	}{
		{"scan", func() *Query { return For("v") }, ShapeScan},
		{"range", func() *Query { return For("v").Range([]interface{}{"a"}, []interface{}{"b"}) }, ShapeRange},
		{"prefix beats range", func() *Query {
			return For("v").Range([]interface{}{"a"}, []interface{}{"b"}).Prefix("p")
		}, ShapePrefix},
		{"range after prefix still loses", func() *Query {
			return For("v").Prefix("p").Range([]interface{}{"a"}, []interface{}{"b"})
		}, ShapePrefix},
		{"keys beats prefix", func() *Query {
			return For("v").Prefix("p").Keys("a", "b")
		}, ShapeKeys},
		{"key beats everything", func() *Query {
			return For("v").Keys("a").Prefix("p").Range(nil, nil).Key("k")
		}, ShapeKey},
		{"key set first still wins", func() *Query {
			return For("v").Key("k").Range([]interface{}{"a"}, nil).Keys("a").Prefix("p")
		}, ShapeKey},
	}
	for _, c := range cases {
		p, err := c.build().Params()
		require.NoError(err, c.name)
		require.Equal(c.want, p.Type, c.name)
	}
}

func TestDefaults(t *testing.T) {
	require := require.New(t)

	p, err := For("v").Params()
	require.NoError(err)
	require.Equal(ShapeScan, p.Type)
	require.False(p.Reduce)
	require.False(p.IncludeDocs)
	require.False(p.Descending)
	require.Equal(0, p.Skip)
	require.Equal(-1, p.Limit)
	require.Nil(p.GroupLevel)
}

func TestSkipLimitClamp(t *testing.T) {
	require := require.New(t)

	p, err := For("v").Skip(-3).Limit(-1).Params()
	require.NoError(err)
	require.Equal(0, p.Skip)
	require.Equal(0, p.Limit)
}

func TestGroup(t *testing.T) {
	require := require.New(t)

	p, err := For("v").Group(true).Params()
	require.NoError(err)
	require.True(p.Reduce)
	require.NotNil(p.GroupLevel)
	require.Equal(0, *p.GroupLevel)

	p, err = For("v").Group(0).Params()
	require.NoError(err)
	require.True(p.Reduce)
	require.Equal(0, *p.GroupLevel)

	p, err = For("v").Group(math.Pi).Params()
	require.NoError(err)
	require.True(p.Reduce)
	require.Equal(3, *p.GroupLevel)

	_, err = For("v").Group(-1).Params()
	require.ErrorIs(err, ErrInvalidGroupLevel)

	_, err = For("v").Group("two").Params()
	require.ErrorIs(err, ErrInvalidGroupLevel)

	p, err = For("v").Reduce(true).Group(false).Params()
	require.NoError(err)
	require.True(p.Reduce)
	require.Nil(p.GroupLevel)
}

func TestOrderToggle(t *testing.T) {
	require := require.New(t)

	p, err := For("v").Order(Descending).Order(Ascending).Order(Descending).Params()
	require.NoError(err)
	require.True(p.Descending)
}

func TestEnableWithNoArgument(t *testing.T) {
	require := require.New(t)

	p, err := For("v").Reduce().IncludeDocs().Params()
	require.NoError(err)
	require.True(p.Reduce)
	require.True(p.IncludeDocs)

	p, err = For("v").Reduce(false).IncludeDocs(false).Params()
	require.NoError(err)
	require.False(p.Reduce)
	require.False(p.IncludeDocs)
}
