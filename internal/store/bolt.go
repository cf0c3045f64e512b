package store

import (
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var segmentsBucket = []byte("segments")

// Bolt stores one key per segment in a bbolt bucket. Keys and values are
// decimal strings.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(segmentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) SegmentLength(index int) (int, error) {
	if err := checkIndex(index); err != nil {
		return 0, err
	}
	var length int
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(segmentsBucket).Get([]byte(strconv.Itoa(index)))
		if v == nil {
			return nil
		}
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("store: segment %d: bad value %q", index, v)
		}
		length = n
		return nil
	})
	return length, err
}

func (b *Bolt) PutSegmentLength(index, length int) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(segmentsBucket).Put([]byte(strconv.Itoa(index)), []byte(strconv.Itoa(length)))
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
