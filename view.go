package cushion

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/vmihailenco/msgpack/v5"
)

//-----------------------------------------------------------------------------

// MapFn produces index entries for one document. It must have no side
// effects: it re-runs on every mutation of the document and during
// rebuilds.
type MapFn func(doc Document, em Emitter)

// ReduceFn folds the rows of one group into a single value. keys holds
// the (emit key, doc id) pair of every row, values the emitted values.
type ReduceFn func(keys []KeyRef, values []interface{}) interface{}

// View is a calculated, persistent index. Source identifies the map
// function body: the view is rebuilt when it changes and left alone when
// it does not, so register every view again at startup. An empty Source
// falls back to the view name, which never triggers a rebuild on
// re-registration.
type View struct {
	Name   string
	Source string
	Map    MapFn
	Reduce ReduceFn
}

// Emitter receives index entries from a map function.
type Emitter interface {
	// Emit adds one entry. key is a tuple of strings, numbers, booleans
	// or byte slices; a single value counts as a one-element tuple.
	// value may be nil.
	Emit(key, value interface{})
}

//-----------------------------------------------------------------------------

// rowPayload is the stored value of an emitted row. Key and ID repeat the
// composite key's emit-key tuple and trailing doc id so that reads never
// have to pick the encoded key apart.
type rowPayload struct {
	Key   []interface{} `msgpack:"k"`
	ID    string        `msgpack:"i"`
	Value interface{}   `msgpack:"v"`
	Doc   Document      `msgpack:"d"`
}

// designRecord is the persisted per-view metadata.
type designRecord struct {
	Signature string `msgpack:"sig"`
	State     string `msgpack:"state"`
}

// design states
const (
	stateBuilding = "building"
	stateReady    = "ready"
)

//-----------------------------------------------------------------------------

type viewEmitter struct {
	ns   string
	view string
	id   string
	doc  Document

	rows []emittedRow
	keys [][]byte
	err  error
}

type emittedRow struct {
	key     []byte
	payload []byte
}

func runMap(ns string, v View, id string, doc Document) (*viewEmitter, error) {
	em := &viewEmitter{ns: ns, view: v.Name, id: id, doc: doc}
	v.Map(doc, em)
	if em.err != nil {
		return nil, em.err
	}
	return em, nil
}

func (em *viewEmitter) Emit(key, value interface{}) {
	if em.err != nil {
		return
	}
	tuple, err := normalizeParts(asTuple(key))
	if err != nil {
		em.err = err
		return
	}
	ck, err := viewRowKey(em.ns, em.view, tuple, em.id)
	if err != nil {
		em.err = err
		return
	}
	payload, err := msgpack.Marshal(rowPayload{Key: tuple, ID: em.id, Value: value, Doc: em.doc})
	if err != nil {
		em.err = err
		return
	}
	em.rows = append(em.rows, emittedRow{key: ck, payload: payload})
	em.keys = append(em.keys, ck)
}

//-----------------------------------------------------------------------------

// DefineView registers a view, replacing any prior entry under the same
// name, and rebuilds its rows unless the persisted signature already
// matches or another rebuild is in progress. It is not safe to call this
// method concurrently with itself.
func (db *DB) DefineView(v View) error {
	if v.Name == "" {
		panic("name must be provided")
	}
	if v.Map == nil {
		panic("map function must be provided")
	}
	if err := db.alive(); err != nil {
		return err
	}

	db.mu.Lock()
	if i, ok := db.viewIndex[v.Name]; ok {
		db.views[i] = v
	} else {
		db.viewIndex[v.Name] = len(db.views)
		db.views = append(db.views, v)
	}
	db.mu.Unlock()

	sig := viewSignature(v)
	rec, found, err := db.getDesign(v.Name)
	if err != nil {
		return err
	}
	if found && rec.Signature == sig {
		return nil
	}
	if found && rec.State == stateBuilding {
		return nil
	}
	return db.rebuild(v, sig)
}

// DropView unregisters a view and deletes its rows, back-references and
// design record.
func (db *DB) DropView(name string) error {
	if err := db.alive(); err != nil {
		return err
	}
	db.mu.Lock()
	if i, ok := db.viewIndex[name]; ok {
		db.views = append(db.views[:i], db.views[i+1:]...)
		delete(db.viewIndex, name)
		for n, j := range db.viewIndex {
			if j > i {
				db.viewIndex[n] = j - 1
			}
		}
	}
	db.mu.Unlock()

	wb := newWriteBatch(db.bdb)
	for _, pfx := range [][]byte{viewPrefix(db.ns, name), refPrefix(db.ns, name)} {
		keys, err := db.collectKeys(pfx)
		if err != nil {
			wb.discard()
			return err
		}
		for _, k := range keys {
			if err := wb.delete(k); err != nil {
				wb.discard()
				return err
			}
		}
	}
	if err := wb.delete(designKey(db.ns, name)); err != nil {
		wb.discard()
		return err
	}
	if err := wb.flush(); err != nil {
		return err
	}
	db.log.Info().Str("view", name).Msg("view dropped")
	return nil
}

// ViewState reports the persisted state of a view's design record:
// "building", "ready", or "" when the view was never built.
func (db *DB) ViewState(name string) (string, error) {
	if err := db.alive(); err != nil {
		return "", err
	}
	rec, found, err := db.getDesign(name)
	if err != nil || !found {
		return "", err
	}
	return rec.State, nil
}

//-----------------------------------------------------------------------------

// rebuild wipes and re-emits every row of a view. Writes go out in
// bounded atomic chunks; the design record stays "building" until the
// last chunk lands. Queries issued meanwhile see partial rows.
func (db *DB) rebuild(v View, sig string) error {
	db.log.Info().Str("view", v.Name).Msg("rebuilding view")
	if err := db.putDesign(v.Name, designRecord{Signature: sig, State: stateBuilding}); err != nil {
		return err
	}

	err := db.rebuildRows(v)
	if err != nil {
		// leave the record absent so a later DefineView retries
		if derr := db.deleteDesign(v.Name); derr != nil {
			db.log.Error().Err(derr).Str("view", v.Name).Msg("dropping design record failed")
		}
		return fmt.Errorf("rebuild view %s: %w", v.Name, err)
	}

	if err := db.putDesign(v.Name, designRecord{Signature: sig, State: stateReady}); err != nil {
		return err
	}
	db.log.Info().Str("view", v.Name).Msg("view ready")
	return nil
}

func (db *DB) rebuildRows(v View) error {
	wb := newWriteBatch(db.bdb)

	for _, pfx := range [][]byte{viewPrefix(db.ns, v.Name), refPrefix(db.ns, v.Name)} {
		keys, err := db.collectKeys(pfx)
		if err != nil {
			wb.discard()
			return err
		}
		for _, k := range keys {
			if err := wb.delete(k); err != nil {
				wb.discard()
				return err
			}
		}
	}

	docs := 0
	err := db.bdb.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		itr := txn.NewIterator(opt)
		defer itr.Close()
		prefix := docPrefix(db.ns)
		for itr.Seek(prefix); itr.ValidForPrefix(prefix); itr.Next() {
			item := itr.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := docFromStored(val, item.Version())
			if err != nil {
				return err
			}
			id, _ := doc["_id"].(string)
			em, err := runMap(db.ns, v, id, doc)
			if err != nil {
				return err
			}
			for _, r := range em.rows {
				if err := wb.set(r.key, r.payload); err != nil {
					return err
				}
			}
			ref, err := msgpack.Marshal(em.keys)
			if err != nil {
				return err
			}
			if err := wb.set(refKey(db.ns, v.Name, id), ref); err != nil {
				return err
			}
			docs++
		}
		return nil
	})
	if err != nil {
		wb.discard()
		return err
	}
	if err := wb.flush(); err != nil {
		return err
	}
	db.log.Debug().Str("view", v.Name).Int("docs", docs).Msg("view rows emitted")
	return nil
}

//-----------------------------------------------------------------------------

// updateForDoc re-emits the rows of one document across every registered
// view. Each view updates in its own atomic batch; a reader interleaving
// between them sees every view individually consistent.
func (db *DB) updateForDoc(id string, doc Document) error {
	for _, v := range db.snapshotViews() {
		if err := db.updateView(v, id, doc); err != nil {
			db.log.Error().Err(err).Str("view", v.Name).Str("id", id).Msg("view update failed")
			return fmt.Errorf("update view %s for doc %s: %w", v.Name, id, err)
		}
	}
	return nil
}

// updateView invalidates a document's old rows via its back-reference and
// writes the new ones, atomically. A nil doc removes everything.
func (db *DB) updateView(v View, id string, doc Document) error {
	rk := refKey(db.ns, v.Name, id)
	return db.bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(rk)
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var stale [][]byte
			if err := msgpack.Unmarshal(val, &stale); err != nil {
				return err
			}
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if doc == nil {
			return txn.Delete(rk)
		}

		em, err := runMap(db.ns, v, id, doc)
		if err != nil {
			return err
		}
		for _, r := range em.rows {
			if err := txn.Set(r.key, r.payload); err != nil {
				return err
			}
		}
		ref, err := msgpack.Marshal(em.keys)
		if err != nil {
			return err
		}
		return txn.Set(rk, ref)
	})
}

//-----------------------------------------------------------------------------

func (db *DB) snapshotViews() []View {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]View, len(db.views))
	copy(out, db.views)
	return out
}

func (db *DB) lookupView(name string) (View, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	i, ok := db.viewIndex[name]
	if !ok {
		return View{}, false
	}
	return db.views[i], true
}

//-----------------------------------------------------------------------------

func (db *DB) getDesign(name string) (designRecord, bool, error) {
	var rec designRecord
	found := false
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(designKey(db.ns, name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		found = true
		return msgpack.Unmarshal(val, &rec)
	})
	return rec, found, err
}

func (db *DB) putDesign(name string, rec designRecord) error {
	val, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(designKey(db.ns, name), val)
	})
}

func (db *DB) deleteDesign(name string) error {
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Delete(designKey(db.ns, name))
	})
}

//-----------------------------------------------------------------------------

func (db *DB) collectKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := db.bdb.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = false
		itr := txn.NewIterator(opt)
		defer itr.Close()
		for itr.Seek(prefix); itr.ValidForPrefix(prefix); itr.Next() {
			keys = append(keys, itr.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

//-----------------------------------------------------------------------------
