// Package inmemdb is an in-memory database, used by tests and local runs without postgres.
// Every write runs on a private copy of the tables which replaces the committed ones on success.
package inmemdb

import (
	"sync"

	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
)

type (
	DB struct {
		writeMu sync.Mutex   // serializes writes & units of work
		mu      sync.RWMutex // guards `data` swaps
		data    *tables
	}

	tables struct {
		users      map[string]user.User
		classes    map[string]fee.Class
		students   map[string]fee.Student
		wallet     []fee.WalletEntry
		categories map[string]fee.Category
		structures map[string]fee.Structure
		ledgers    map[string]fee.Ledger
		txns       map[string]fee.Transaction
	}
)

func Open() (*DB, error) {
	db := &DB{
		data: &tables{
			users:      make(map[string]user.User),
			classes:    make(map[string]fee.Class),
			students:   make(map[string]fee.Student),
			categories: make(map[string]fee.Category),
			structures: make(map[string]fee.Structure),
			ledgers:    make(map[string]fee.Ledger),
			txns:       make(map[string]fee.Transaction),
		},
	}
	return db, nil
}

// view returns the committed tables. They are never mutated in place.
func (db *DB) view() *tables {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.data
}

// update runs fn on a copy of the tables and commits it if fn succeeds.
func (db *DB) update(fn func(t *tables) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	t := db.view().clone()
	if err := fn(t); err != nil {
		return err
	}

	db.mu.Lock()
	db.data = t
	db.mu.Unlock()
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		users:      make(map[string]user.User, len(t.users)),
		classes:    make(map[string]fee.Class, len(t.classes)),
		students:   make(map[string]fee.Student, len(t.students)),
		wallet:     make([]fee.WalletEntry, len(t.wallet)),
		categories: make(map[string]fee.Category, len(t.categories)),
		structures: make(map[string]fee.Structure, len(t.structures)),
		ledgers:    make(map[string]fee.Ledger, len(t.ledgers)),
		txns:       make(map[string]fee.Transaction, len(t.txns)),
	}
	for k, v := range t.users {
		v.Roles = append([]string(nil), v.Roles...)
		c.users[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	copy(c.wallet, t.wallet)
	for k, v := range t.categories {
		c.categories[k] = v
	}
	for k, v := range t.structures {
		c.structures[k] = v
	}
	for k, v := range t.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range t.txns {
		c.txns[k] = v
	}
	return c
}
