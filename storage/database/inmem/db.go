// Package inmemdb keeps every table in memory. It backs the tests and local runs without PostgreSQL.
package inmemdb

import (
	"sync"

	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/user"
)

// DB guards all tables with one lock so that operations spanning tables stay atomic.
type DB struct {
	mu      sync.RWMutex
	users   map[string]*user.User
	schools map[string]*school.School
	classes map[string]*school.Class
}

func Open() *DB {
	return &DB{
		users:   make(map[string]*user.User),
		schools: make(map[string]*school.School),
		classes: make(map[string]*school.Class),
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.schools = make(map[string]*school.School)
	db.classes = make(map[string]*school.Class)
}
