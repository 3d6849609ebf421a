// Package bbolt provides a BBolt-backed certificate repository and
// template store.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/ironcert/storage"
	"go.etcd.io/bbolt"
)

var (
	bucketCertificates = []byte("certificates")
	bucketUniqueIDs    = []byte("certificate_uids")
	bucketTemplates    = []byte("templates")
)

// Store implements storage.CertificateRepository and storage.TemplateStore
// backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var (
	_ storage.CertificateRepository = (*Store)(nil)
	_ storage.TemplateStore         = (*Store)(nil)
)

// NewRepository returns a Store backed by the given BBolt database. The
// buckets are created on first write.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Store.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func getCert(b *bbolt.Bucket, id int64) (*storage.CertificateRecord, error) {
	if b == nil {
		return nil, fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	data := b.Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	var rec storage.CertificateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding certificate %d: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) Load(ctx context.Context, id int64) (*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *storage.CertificateRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getCert(tx.Bucket(bucketCertificates), id)
		return err
	})
	return rec, err
}

func (s *Store) LoadByUniqueID(ctx context.Context, uniqueID string) (*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *storage.CertificateRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketUniqueIDs)
		if idx == nil {
			return fmt.Errorf("certificate %s: %w", uniqueID, storage.ErrNotFound)
		}
		key := idx.Get([]byte(uniqueID))
		if key == nil {
			return fmt.Errorf("certificate %s: %w", uniqueID, storage.ErrNotFound)
		}
		var err error
		rec, err = getCert(tx.Bucket(bucketCertificates), btoi(key))
		return err
	})
	return rec, err
}

func (s *Store) Exists(ctx context.Context, uniqueID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		if idx := tx.Bucket(bucketUniqueIDs); idx != nil {
			found = idx.Get([]byte(uniqueID)) != nil
		}
		return nil
	})
	return found, err
}

// Insert writes rec and its unique id index entry in one transaction.
// BBolt serialises writers, so the uniqueness check cannot race.
func (s *Store) Insert(ctx context.Context, rec *storage.CertificateRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		certs, err := tx.CreateBucketIfNotExists(bucketCertificates)
		if err != nil {
			return err
		}
		idx, err := tx.CreateBucketIfNotExists(bucketUniqueIDs)
		if err != nil {
			return err
		}
		if idx.Get([]byte(rec.UniqueCertificateID)) != nil {
			return storage.ErrDuplicateKey
		}
		seq, err := certs.NextSequence()
		if err != nil {
			return err
		}
		stored := rec.Clone()
		stored.ID = int64(seq)
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if err := certs.Put(itob(stored.ID), data); err != nil {
			return err
		}
		id = stored.ID
		return idx.Put([]byte(stored.UniqueCertificateID), itob(stored.ID))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) SetState(ctx context.Context, id int64, state int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		rec, err := getCert(b, id)
		if err != nil {
			return err
		}
		rec.State = state
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// List scans the certificates bucket in key order, which is id order.
func (s *Store) List(ctx context.Context, filter storage.CertificateFilter) ([]*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*storage.CertificateRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec storage.CertificateRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding certificate %d: %w", btoi(k), err)
			}
			if filter.Match(&rec) {
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*storage.TemplateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var t storage.TemplateRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		if b == nil {
			return fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
		}
		data := b.Get(itob(id))
		if data == nil {
			return fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PutTemplate stores t. A zero ID allocates a new one from the bucket sequence.
func (s *Store) PutTemplate(ctx context.Context, t *storage.TemplateRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cp := *t
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketTemplates)
		if err != nil {
			return err
		}
		if cp.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			cp.ID = int64(seq)
		} else if uint64(cp.ID) > b.Sequence() {
			if err := b.SetSequence(uint64(cp.ID)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(&cp)
		if err != nil {
			return err
		}
		return b.Put(itob(cp.ID), data)
	})
	if err != nil {
		return 0, err
	}
	return cp.ID, nil
}
