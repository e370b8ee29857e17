// Package cushion is an embedded document (json) database with
// incrementally maintained map/reduce views.
//
// Documents carry two reserved fields: "_id", the stored key, and
// "_rev", an opaque version token assigned by the store on every write.
// Replace and Remove are compare-and-swap on that token. Views index
// documents through user-supplied map functions and stay current across
// every mutation.
package cushion

import (
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

//-----------------------------------------------------------------------------

// DB represents a database instance.
type DB struct {
	bdb   *badger.DB
	owned bool
	ns    string
	log   zerolog.Logger

	cache  *lru.Cache
	closed int32

	mu        sync.RWMutex
	views     []View
	viewIndex map[string]int
}

type cachedDoc struct {
	js  []byte
	ver uint64
}

// Open opens the database with provided options.
func Open(opt Options) (*DB, error) {
	bopt := badger.DefaultOptions(opt.Dir).WithLogger(nil)
	if opt.ValueDir != "" {
		bopt = bopt.WithValueDir(opt.ValueDir)
	}
	bdb, err := badger.Open(bopt)
	if err != nil {
		return nil, err
	}
	db := newDB(bdb, opt)
	db.owned = true
	return db, nil
}

// Attach wraps an already open badger handle. Close leaves the handle
// open. Several namespaces may attach to one handle; they are fully
// isolated from each other.
func Attach(bdb *badger.DB, opt Options) *DB {
	return newDB(bdb, opt)
}

func newDB(bdb *badger.DB, opt Options) *DB {
	ns := opt.Namespace
	if ns == "" {
		ns = "default"
	}
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}
	var cache *lru.Cache
	size := opt.CacheSize
	if size == 0 {
		size = 1024
	}
	if size > 0 {
		cache, _ = lru.New(size)
	}
	return &DB{
		bdb:       bdb,
		ns:        ns,
		log:       log,
		cache:     cache,
		viewIndex: make(map[string]int),
	}
}

// Close closes the database. Every operation afterwards fails with
// ErrDatabaseClosed. An attached handle is left open for its owner.
func (db *DB) Close() error {
	if !atomic.CompareAndSwapInt32(&db.closed, 0, 1) {
		return ErrDatabaseClosed
	}
	if db.cache != nil {
		db.cache.Purge()
	}
	if db.owned {
		return db.bdb.Close()
	}
	return nil
}

func (db *DB) alive() error {
	if atomic.LoadInt32(&db.closed) != 0 {
		return ErrDatabaseClosed
	}
	return nil
}

//-----------------------------------------------------------------------------

// Get reads a document. The result carries "_rev" set to the current
// version token; a missing document yields nil, nil.
func (db *DB) Get(id string) (Document, error) {
	if err := db.alive(); err != nil {
		return nil, err
	}
	if db.cache != nil {
		if c, ok := db.cache.Get(id); ok {
			cd := c.(cachedDoc)
			return docFromStored(cd.js, cd.ver)
		}
	}
	var (
		js  []byte
		ver uint64
	)
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dockey(db.ns, id))
		if err != nil {
			return err
		}
		js, err = item.ValueCopy(nil)
		ver = item.Version()
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if db.cache != nil {
		db.cache.Add(id, cachedDoc{js: js, ver: ver})
	}
	return docFromStored(js, ver)
}

// Insert creates a document. The id is taken from "_id" when present,
// otherwise generated. A document carrying "_rev" is rejected with
// ErrUnexpectedRev; an existing id fails with ErrDuplicateDocument.
func (db *DB) Insert(doc interface{}) (Result, error) {
	if err := db.alive(); err != nil {
		return Result{}, err
	}
	js, id, hasRev, err := prepdoc(doc)
	if err != nil {
		return Result{}, err
	}
	if hasRev {
		return Result{}, ErrUnexpectedRev
	}
	if id == "" {
		id = uuid.NewString()
	}
	stored, body, err := storeddoc(js, id)
	if err != nil {
		return Result{}, err
	}
	key := dockey(db.ns, id)
	err = db.bdb.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrDuplicateDocument
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, stored)
	})
	if err != nil {
		return Result{}, err
	}
	return db.committed(id, key, stored, body)
}

// Replace overwrites a document iff rev matches the current version
// token; a stale or absent token fails with ErrRevisionConflict. Any
// "_rev" inside doc is stripped and "_id" is forced to id.
func (db *DB) Replace(id, rev string, doc interface{}) (Result, error) {
	if err := db.alive(); err != nil {
		return Result{}, err
	}
	want, ok := parseRev(rev)
	if !ok {
		return Result{}, ErrRevisionConflict
	}
	js, _, _, err := prepdoc(doc)
	if err != nil {
		return Result{}, err
	}
	stored, body, err := storeddoc(js, id)
	if err != nil {
		return Result{}, err
	}
	key := dockey(db.ns, id)
	err = db.bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrRevisionConflict
		}
		if err != nil {
			return err
		}
		if item.Version() != want {
			return ErrRevisionConflict
		}
		return txn.Set(key, stored)
	})
	if err != nil {
		return Result{}, err
	}
	return db.committed(id, key, stored, body)
}

// Remove deletes a document iff rev matches the current version token.
func (db *DB) Remove(id, rev string) (Result, error) {
	if err := db.alive(); err != nil {
		return Result{}, err
	}
	want, ok := parseRev(rev)
	if !ok {
		return Result{}, ErrRevisionConflict
	}
	key := dockey(db.ns, id)
	err := db.bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrRevisionConflict
		}
		if err != nil {
			return err
		}
		if item.Version() != want {
			return ErrRevisionConflict
		}
		return txn.Delete(key)
	})
	if err != nil {
		return Result{}, err
	}
	if db.cache != nil {
		db.cache.Remove(id)
	}
	if err := db.updateForDoc(id, nil); err != nil {
		return Result{}, err
	}
	return Result{OK: true, ID: id}, nil
}

//-----------------------------------------------------------------------------

// committed finishes a successful document write: it picks up the
// version token the store assigned, refreshes the cache and fans the
// mutation into every registered view.
func (db *DB) committed(id string, key, stored []byte, body Document) (Result, error) {
	var ver uint64
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		ver = item.Version()
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if db.cache != nil {
		db.cache.Add(id, cachedDoc{js: stored, ver: ver})
	}
	rev := revstr(ver)
	body["_rev"] = rev
	if err := db.updateForDoc(id, body); err != nil {
		return Result{}, err
	}
	return Result{OK: true, ID: id, Rev: rev}, nil
}

//-----------------------------------------------------------------------------
