package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-portals/core/auth"
)

type sessionRepository struct {
	db *sessionTable
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) auth.SessionRepository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, rec auth.SessionRecord) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[rec.ID] = &rec
	return nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string) (auth.SessionRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return auth.SessionRecord{}, auth.ErrSessionNotFound
}

func (repo *sessionRepository) RevokeSession(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if rec, ok := repo.db.table[id]; ok && rec.RevokedAt == nil {
		t := at.UTC()
		rec.RevokedAt = &t
	}
	return nil
}

func (repo *sessionRepository) RevokeUserSessions(_ context.Context, userID string, at time.Time) ([]string, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var ids []string
	t := at.UTC()
	for _, rec := range repo.db.table {
		if rec.UserID == userID && rec.RevokedAt == nil && rec.ExpiresAt.After(t) {
			rec.RevokedAt = &t
			ids = append(ids, rec.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
