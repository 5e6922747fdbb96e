package repository

import (
	"context"
	"log"

	"gorm.io/gorm"
)

// TxRunner runs a unit of work against the database, transactionally when
// the connection supports it. Settlement transitions and their dependent
// writes must all go through the same runner so they commit or roll back
// together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	// Transactional reports whether RunInTx actually wraps fn in a
	// transaction. Pool proxies in statement mode cannot hold one open.
	Transactional() bool
}

type txRunner struct {
	db       *gorm.DB
	disabled bool
}

func NewTxRunner(db *gorm.DB, disabled bool) TxRunner {
	if disabled {
		log.Println("[tx] transactions disabled, writes run sequentially without rollback")
	}
	return &txRunner{db: db, disabled: disabled}
}

func (r *txRunner) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.disabled {
		return fn(r.db.WithContext(ctx))
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func (r *txRunner) Transactional() bool {
	return !r.disabled
}
