package cushion

import "github.com/dgraph-io/badger"

//-----------------------------------------------------------------------------

// writeBatch commits rebuild writes in bounded atomic chunks. A chunk
// commits after batchSize operations, or earlier when the transaction
// hits the store's own size ceiling.
type writeBatch struct {
	bdb *badger.DB
	txn *badger.Txn
	ops int
}

func newWriteBatch(bdb *badger.DB) *writeBatch {
	return &writeBatch{bdb: bdb, txn: bdb.NewTransaction(true)}
}

func (b *writeBatch) set(k, v []byte) error {
	return b.apply(func(txn *badger.Txn) error { return txn.Set(k, v) })
}

func (b *writeBatch) delete(k []byte) error {
	return b.apply(func(txn *badger.Txn) error { return txn.Delete(k) })
}

func (b *writeBatch) apply(op func(*badger.Txn) error) error {
	if err := op(b.txn); err != nil {
		if err != badger.ErrTxnTooBig {
			return err
		}
		if err := b.roll(); err != nil {
			return err
		}
		if err := op(b.txn); err != nil {
			return err
		}
	}
	b.ops++
	if b.ops >= batchSize {
		return b.roll()
	}
	return nil
}

func (b *writeBatch) roll() error {
	if err := b.txn.Commit(); err != nil {
		return err
	}
	b.txn = b.bdb.NewTransaction(true)
	b.ops = 0
	return nil
}

func (b *writeBatch) flush() error {
	return b.txn.Commit()
}

func (b *writeBatch) discard() {
	b.txn.Discard()
}

//-----------------------------------------------------------------------------
