// Package inmemdb provides goroutine-safe, in-memory repositories for tests and demo deployments.
package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/core/user"
)

type (
	DB struct {
		user    *userTable
		session *sessionTable
	}

	userTable struct {
		sync.RWMutex
		accounts map[string]*user.Account // by ID
		profiles map[string]*user.Profile // by user ID
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*auth.SessionRecord
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{
			accounts: make(map[string]*user.Account),
			profiles: make(map[string]*user.Profile),
		},
		session: &sessionTable{table: make(map[string]*auth.SessionRecord)},
	}
}
