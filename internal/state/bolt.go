package state

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSession  = []byte("session")
	keySubject     = []byte("subject")
	keyAccessToken = []byte("access_token")
	keyRole        = []byte("role")
)

// Bolt persists the snapshot in a bbolt file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the state file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Save(s Snapshot) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketSession)
		if err != nil {
			return err
		}
		if err := bk.Put(keySubject, []byte(s.Subject)); err != nil {
			return err
		}
		if err := bk.Put(keyAccessToken, []byte(s.AccessToken)); err != nil {
			return err
		}
		return bk.Put(keyRole, []byte(s.Role))
	})
}

func (b *Bolt) Load() (Snapshot, bool, error) {
	var (
		snap Snapshot
		ok   bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketSession)
		if bk == nil {
			return nil
		}
		snap.Subject = string(bk.Get(keySubject))
		snap.AccessToken = string(bk.Get(keyAccessToken))
		snap.Role = string(bk.Get(keyRole))
		ok = snap.AccessToken != ""
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, ok, nil
}

func (b *Bolt) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSession) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketSession)
	})
}
