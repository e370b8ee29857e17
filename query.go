package cushion

//-----------------------------------------------------------------------------

// ShapeType names the key shape a query scans by.
type ShapeType string

// query shapes, highest precedence first
const (
	ShapeKey    ShapeType = "key"
	ShapeKeys   ShapeType = "keys"
	ShapePrefix ShapeType = "prefix"
	ShapeRange  ShapeType = "range"
	ShapeScan   ShapeType = "scan"
)

// Params is a fully materialized query specification. Limit < 0 means
// unlimited. GroupLevel nil means reduce-all; 0 groups by the full emit
// key; n > 0 by its first n parts.
type Params struct {
	View string
	Type ShapeType

	Key    []interface{}
	Keys   [][]interface{}
	Prefix []interface{}
	Start  []interface{}
	End    []interface{}

	StartDocID string
	EndDocID   string
	HasIDRange bool

	Skip  int
	Limit int

	IncludeDocs bool
	Descending  bool
	Reduce      bool
	GroupLevel  *int
}

//-----------------------------------------------------------------------------

// Query is a fluent builder for a query specification. All setters return
// the receiver. When several shapes are set, the highest-precedence one
// wins: key > keys > prefix > range > scan.
type Query struct {
	view string

	key       []interface{}
	keys      [][]interface{}
	prefix    []interface{}
	start     []interface{}
	end       []interface{}
	hasKey    bool
	hasKeys   bool
	hasPrefix bool
	hasRange  bool

	startDocID string
	endDocID   string
	hasIDRange bool

	skip  int
	limit int

	includeDocs bool
	descending  bool
	reduce      bool
	groupLevel  *int

	err error
}

// For starts a query against the named view.
func For(view string) *Query {
	return &Query{view: view, limit: -1}
}

// Key selects rows whose emit key equals k. A single value is treated as
// a one-element tuple. The scan is a prefix scan over k's encoding, so a
// row whose emit key has more parts than k and starts with k also matches.
func (q *Query) Key(k interface{}) *Query {
	q.key = asTuple(k)
	q.hasKey = true
	return q
}

// Keys records a set of exact keys. DB.Query does not execute this shape:
// a query that resolves to it fails with ErrNotImplemented.
func (q *Query) Keys(ks ...interface{}) *Query {
	q.keys = make([][]interface{}, len(ks))
	for i, k := range ks {
		q.keys[i] = asTuple(k)
	}
	q.hasKeys = true
	return q
}

// Prefix selects rows whose emit key starts with the given parts.
func (q *Query) Prefix(p interface{}) *Query {
	q.prefix = asTuple(p)
	q.hasPrefix = true
	return q
}

// Range selects rows in the half-open interval [start, end) of emit-key
// order. A nil bound leaves that edge open.
func (q *Query) Range(start, end interface{}) *Query {
	if start != nil {
		q.start = asTuple(start)
	} else {
		q.start = nil
	}
	if end != nil {
		q.end = asTuple(end)
	} else {
		q.end = nil
	}
	q.hasRange = true
	return q
}

// IDRange refines a range's edges by document id within equal emit keys.
func (q *Query) IDRange(startDocID, endDocID string) *Query {
	q.startDocID = startDocID
	q.endDocID = endDocID
	q.hasIDRange = true
	return q
}

// Skip drops the first n results. Negative values clamp to zero.
func (q *Query) Skip(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.skip = n
	return q
}

// Limit caps the number of results. Negative values clamp to zero.
func (q *Query) Limit(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.limit = n
	return q
}

// IncludeDocs attaches the document snapshot to every map row. Calling it
// with no argument enables.
func (q *Query) IncludeDocs(on ...bool) *Query {
	q.includeDocs = len(on) == 0 || on[0]
	return q
}

// Order sets the scan direction. It may toggle freely.
func (q *Query) Order(d Direction) *Query {
	q.descending = d == Descending
	return q
}

// Reduce runs the view's reduce function over the selected rows. Calling
// it with no argument enables.
func (q *Query) Reduce(on ...bool) *Query {
	q.reduce = len(on) == 0 || on[0]
	return q
}

// Group controls reduce grouping:
//
//	true or 0       group by the full emit key (and enable reduce)
//	positive number group by that many leading key parts, fraction floored
//	false           clear the group level, leaving reduce as it is
//
// Anything else, negative numbers included, fails the query with
// ErrInvalidGroupLevel.
func (q *Query) Group(v interface{}) *Query {
	if b, ok := v.(bool); ok {
		if !b {
			q.groupLevel = nil
			return q
		}
		q.reduce = true
		lvl := 0
		q.groupLevel = &lvl
		return q
	}
	f, err := normalizePart(v)
	n, ok := f.(float64)
	if err != nil || !ok || n < 0 {
		q.err = ErrInvalidGroupLevel
		return q
	}
	q.reduce = true
	lvl := int(n)
	q.groupLevel = &lvl
	return q
}

// Params materializes the specification. The first satisfied shape in the
// precedence order wins. Builder errors surface here.
func (q *Query) Params() (Params, error) {
	if q.err != nil {
		return Params{}, q.err
	}
	p := Params{
		View:        q.view,
		StartDocID:  q.startDocID,
		EndDocID:    q.endDocID,
		HasIDRange:  q.hasIDRange,
		Skip:        q.skip,
		Limit:       q.limit,
		IncludeDocs: q.includeDocs,
		Descending:  q.descending,
		Reduce:      q.reduce,
		GroupLevel:  q.groupLevel,
	}
	switch {
	case q.hasKey:
		p.Type = ShapeKey
		p.Key = q.key
	case q.hasKeys:
		p.Type = ShapeKeys
		p.Keys = q.keys
	case q.hasPrefix:
		p.Type = ShapePrefix
		p.Prefix = q.prefix
	case q.hasRange:
		p.Type = ShapeRange
		p.Start = q.start
		p.End = q.end
	default:
		p.Type = ShapeScan
	}
	return p, nil
}

//-----------------------------------------------------------------------------
