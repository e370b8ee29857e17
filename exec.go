package cushion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/vmihailenco/msgpack/v5"
)

//-----------------------------------------------------------------------------

// Query runs a query built with For against this database. Map rows come
// back in emit-key order (reversed when descending); reduce rows come
// back one per group, in the order groups were first encountered by the
// scan. Results materialize inside a single read transaction.
func (db *DB) Query(q *Query) ([]Row, error) {
	if err := db.alive(); err != nil {
		return nil, err
	}
	p, err := q.Params()
	if err != nil {
		return nil, err
	}
	v, ok := db.lookupView(p.View)
	if !ok {
		return nil, ErrUndefinedView
	}
	sel, err := db.selector(p)
	if err != nil {
		return nil, err
	}
	if p.Reduce && v.Reduce != nil {
		return db.queryReduce(v, p, sel)
	}
	return db.queryMap(p, sel)
}

//-----------------------------------------------------------------------------

// selector is the byte range a query scans: every key under prefix,
// starting at start, stopping before end (nil end means the prefix's own
// upper bound).
type selector struct {
	prefix []byte
	start  []byte
	end    []byte
}

func (db *DB) selector(p Params) (selector, error) {
	vp := viewPrefix(db.ns, p.View)
	switch p.Type {
	case ShapeKey:
		pfx, err := encodeBound(db.ns, p.View, p.Key)
		if err != nil {
			return selector{}, err
		}
		return selector{prefix: pfx, start: pfx}, nil
	case ShapeKeys:
		return selector{}, fmt.Errorf("%w: keys query shape", ErrNotImplemented)
	case ShapePrefix:
		pfx, err := encodeBound(db.ns, p.View, p.Prefix)
		if err != nil {
			return selector{}, err
		}
		return selector{prefix: pfx, start: pfx}, nil
	case ShapeRange:
		start := vp
		if p.Start != nil {
			var err error
			start, err = encodeBound(db.ns, p.View, p.Start)
			if err != nil {
				return selector{}, err
			}
			if p.HasIDRange {
				start = mustAppend(start, p.StartDocID)
			}
		}
		var end []byte
		if p.End != nil {
			var err error
			end, err = encodeBound(db.ns, p.View, p.End)
			if err != nil {
				return selector{}, err
			}
			if p.HasIDRange {
				end = mustAppend(end, p.EndDocID)
			}
		}
		return selector{prefix: vp, start: start, end: end}, nil
	default:
		return selector{prefix: vp, start: vp}, nil
	}
}

func encodeBound(ns, view string, parts []interface{}) ([]byte, error) {
	norm, err := normalizeParts(parts)
	if err != nil {
		return nil, err
	}
	return appendEmitKey(viewPrefix(ns, view), norm)
}

//-----------------------------------------------------------------------------

var errStopScan = errors.New("stop scan")

// scan walks the selector in the requested direction, calling visit for
// every row key inside the range.
func (db *DB) scan(sel selector, reverse bool, visit func(item *badger.Item) error) error {
	err := db.bdb.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.Reverse = reverse
		itr := txn.NewIterator(opt)
		defer itr.Close()

		if !reverse {
			for itr.Seek(sel.start); itr.ValidForPrefix(sel.prefix); itr.Next() {
				if sel.end != nil && bytes.Compare(itr.Item().Key(), sel.end) >= 0 {
					break
				}
				if err := visit(itr.Item()); err != nil {
					return err
				}
			}
			return nil
		}

		// Walk down from the exclusive upper bound. A reverse seek lands
		// on the largest key at or below the target, which may still sit
		// at or past the bound.
		target := sel.end
		if target == nil {
			target = prefixSuccessor(sel.prefix)
		}
		if target == nil {
			itr.Rewind()
		} else {
			itr.Seek(target)
		}
		for ; itr.Valid(); itr.Next() {
			k := itr.Item().Key()
			if sel.end != nil && bytes.Compare(k, sel.end) >= 0 {
				continue
			}
			if !bytes.HasPrefix(k, sel.prefix) {
				if bytes.Compare(k, sel.prefix) > 0 {
					continue
				}
				break
			}
			if bytes.Compare(k, sel.start) < 0 {
				break
			}
			if err := visit(itr.Item()); err != nil {
				return err
			}
		}
		return nil
	})
	if err == errStopScan {
		return nil
	}
	return err
}

//-----------------------------------------------------------------------------

func (db *DB) queryMap(p Params, sel selector) ([]Row, error) {
	var rows []Row
	skip := p.Skip
	limit := p.Limit
	err := db.scan(sel, p.Descending, func(item *badger.Item) error {
		if limit == 0 {
			return errStopScan
		}
		if skip > 0 {
			skip--
			return nil
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var pl rowPayload
		if err := msgpack.Unmarshal(val, &pl); err != nil {
			return err
		}
		row := Row{Key: pl.Key, ID: pl.ID, Value: pl.Value}
		if p.IncludeDocs {
			row.Doc = pl.Doc
		}
		rows = append(rows, row)
		if limit > 0 {
			limit--
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

//-----------------------------------------------------------------------------

type reduceGroup struct {
	key    []interface{}
	keys   []KeyRef
	values []interface{}
}

// queryReduce scans the whole selected range into groups, keeping the
// order of first encounter, then applies skip and limit to the group
// sequence and folds each group through the view's reduce function.
func (db *DB) queryReduce(v View, p Params, sel selector) ([]Row, error) {
	var order []*reduceGroup
	index := make(map[string]*reduceGroup)

	err := db.scan(sel, p.Descending, func(item *badger.Item) error {
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var pl rowPayload
		if err := msgpack.Unmarshal(val, &pl); err != nil {
			return err
		}
		gkey, ident, err := groupIdent(p.GroupLevel, pl.Key)
		if err != nil {
			return err
		}
		g := index[ident]
		if g == nil {
			g = &reduceGroup{key: gkey}
			index[ident] = g
			order = append(order, g)
		}
		g.keys = append(g.keys, KeyRef{Key: pl.Key, ID: pl.ID})
		g.values = append(g.values, pl.Value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var rows []Row
	skip := p.Skip
	limit := p.Limit
	for _, g := range order {
		if skip > 0 {
			skip--
			continue
		}
		if limit == 0 {
			break
		}
		rows = append(rows, Row{Key: g.key, Value: v.Reduce(g.keys, g.values)})
		if limit > 0 {
			limit--
		}
	}
	return rows, nil
}

// groupIdent derives a group's key tuple and its stable identity. No
// group level means one bucket for everything, identified out of band of
// any json-encodable key.
func groupIdent(level *int, emitKey []interface{}) ([]interface{}, string, error) {
	if level == nil {
		return nil, "\x00all", nil
	}
	gkey := emitKey
	if n := *level; n > 0 && n < len(emitKey) {
		gkey = emitKey[:n]
	}
	ident, err := json.Marshal(gkey)
	if err != nil {
		return nil, "", err
	}
	return gkey, string(ident), nil
}
