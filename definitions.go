package cushion

import (
	"errors"

	"github.com/rs/zerolog"
)

//-----------------------------------------------------------------------------

// Document is a decoded document body. The fields "_id" and "_rev" are
// reserved: "_id" always matches the stored key and "_rev" carries the
// version token assigned by the store on the last write.
type Document map[string]interface{}

// Result reports the outcome of a document mutation.
type Result struct {
	OK  bool
	ID  string
	Rev string
}

// Row is a single query result. For map rows Key is the emitted key tuple
// and ID is the contributing document id. For reduce rows Key is the group
// key tuple (nil when reducing all rows into one bucket) and ID is empty.
type Row struct {
	Key   []interface{}
	ID    string
	Value interface{}
	Doc   Document
}

// KeyRef names one emitted row inside a reduce group.
type KeyRef struct {
	Key []interface{}
	ID  string
}

//-----------------------------------------------------------------------------

// Direction selects the scan order of a query.
type Direction int

// scan directions
const (
	Ascending Direction = iota
	Descending
)

//-----------------------------------------------------------------------------

// Options are params for creating DB object.
type Options struct {
	// 1. Mandatory flags
	// -------------------
	// Directory to store the data in. Should exist and be writable.
	Dir string
	// Directory to store the value log in. Can be the same as Dir. Should
	// exist and be writable. Defaults to Dir.
	ValueDir string

	// 2. Optional flags
	// -------------------
	// Namespace scopes every key. Two namespaces over the same store are
	// fully isolated. Defaults to "default".
	Namespace string
	// CacheSize is the number of hot documents kept in memory. Zero means
	// the default (1024); a negative value disables the cache.
	CacheSize int
	// Logger receives structured events (view rebuilds, drops, failed
	// updates). Nil means no logging.
	Logger *zerolog.Logger
}

//-----------------------------------------------------------------------------

// sentinel errors
var (
	ErrInvalidJSONDoc    = errors.New("invalid json doc")
	ErrUnexpectedRev     = errors.New("doc must not carry _rev on insert")
	ErrDuplicateDocument = errors.New("document already exists")
	ErrRevisionConflict  = errors.New("revision conflict")
	ErrUndefinedView     = errors.New("undefined view")
	ErrInvalidGroupLevel = errors.New("group level must be a boolean or a non-negative number")
	ErrNotImplemented    = errors.New("not implemented")
	ErrDatabaseClosed    = errors.New("database is closed")
	ErrInvalidEmitKey    = errors.New("emit key part must be a string, number, boolean or byte slice")
)

//-----------------------------------------------------------------------------

const batchSize = 1000

//-----------------------------------------------------------------------------
