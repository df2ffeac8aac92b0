package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.etcd.io/bbolt"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
)

var (
	sessionsBucket   = []byte("sessions")
	tokenIndexBucket = []byte("session_token_index")

	errSessionExists  = errors.New("session already exists")
	errTokenHashTaken = errors.New("session token hash already in use")
)

// BoltRepository stores sessions in a bbolt file for single-node deployments.
// Sessions are JSON values keyed by id; a second bucket maps token hash to id.
type BoltRepository struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path and ensures the buckets exist.
func OpenBolt(path string) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	r, err := NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewBoltRepository wraps an open bbolt database.
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(tokenIndexBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltRepository{db: db}, nil
}

// Close closes the underlying database file.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	var s *domain.Session
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		s, err = readSession(tx, id)
		return err
	})
	return s, err
}

func (r *BoltRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	var s *domain.Session
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(tokenIndexBucket).Get([]byte(tokenHash))
		if id == nil {
			return nil
		}
		var err error
		s, err = readSession(tx, string(id))
		return err
	})
	return s, err
}

func (r *BoltRepository) Create(_ context.Context, s *domain.Session) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(sessionsBucket)
		index := tx.Bucket(tokenIndexBucket)
		if sessions.Get([]byte(s.ID)) != nil {
			return errSessionExists
		}
		if index.Get([]byte(s.TokenHash)) != nil {
			return errTokenHashTaken
		}
		if err := writeSession(tx, s); err != nil {
			return err
		}
		return index.Put([]byte(s.TokenHash), []byte(s.ID))
	})
}

func (r *BoltRepository) Revoke(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(s *domain.Session) {
		if s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
		}
		s.UpdatedAt = at
	})
}

func (r *BoltRepository) SetActiveOrganization(_ context.Context, id, orgID string, role membershipdomain.Role, at time.Time) error {
	return r.update(id, func(s *domain.Session) {
		s.ActiveOrgID = orgID
		s.ActiveRole = role
		if orgID == "" {
			s.ActiveRole = ""
		}
		s.UpdatedAt = at
	})
}

// ClearActiveOrganization scans the sessions bucket; bolt keeps no index by user.
func (r *BoltRepository) ClearActiveOrganization(_ context.Context, userID, orgID string, at time.Time) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		var stale []*domain.Session
		err := tx.Bucket(sessionsBucket).ForEach(func(_, v []byte) error {
			var s domain.Session
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if s.UserID == userID && s.ActiveOrgID == orgID {
				stale = append(stale, &s)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, s := range stale {
			s.ActiveOrgID = ""
			s.ActiveRole = ""
			s.UpdatedAt = at
			if err := writeSession(tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BoltRepository) update(id string, fn func(*domain.Session)) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		s, err := readSession(tx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return domain.ErrSessionNotFound
		}
		fn(s)
		return writeSession(tx, s)
	})
}

func readSession(tx *bbolt.Tx, id string) (*domain.Session, error) {
	val := tx.Bucket(sessionsBucket).Get([]byte(id))
	if val == nil {
		return nil, nil
	}
	var s domain.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func writeSession(tx *bbolt.Tx, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return tx.Bucket(sessionsBucket).Put([]byte(s.ID), data)
}
