package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketAudit = []byte("audit")

// ErrSinkClosed возвращается при работе с закрытым BoltSink
var ErrSinkClosed = errors.New("audit sink is closed")

// BoltSink хранит журнал в BoltDB. Ключ записи - big-endian NextSequence
// бакета, поэтому курсор обходит записи в порядке поступления.
type BoltSink struct {
	db *bbolt.DB
}

// OpenBolt открывает (или создает) файл журнала
func OpenBolt(path string) (*BoltSink, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAudit); err != nil {
			return fmt.Errorf("failed to create audit bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltSink{db: db}, nil
}

// Close закрывает файл журнала
func (s *BoltSink) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Write добавляет запись в конец журнала и проставляет rec.Seq
func (s *BoltSink) Write(ctx context.Context, rec *Record) error {
	if s.db == nil {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAudit)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate audit sequence: %w", err)
		}
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal audit record: %w", err)
		}

		if err := bucket.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to save audit record: %w", err)
		}
		return nil
	})
}

// List возвращает записи документа в порядке поступления, начиная с afterSeq+1.
// Пустой documentID означает все документы, limit <= 0 - без ограничения.
func (s *BoltSink) List(ctx context.Context, documentID string, afterSeq uint64, limit int) ([]*Record, error) {
	if s.db == nil {
		return nil, ErrSinkClosed
	}

	records := make([]*Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Seek(seqKey(afterSeq + 1)); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal audit record: %w", err)
			}
			if documentID != "" && rec.DocumentID != documentID {
				continue
			}

			records = append(records, &rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	return records, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
