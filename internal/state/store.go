package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
	"github.com/PentesterFlow/slowscope/internal/registry"
)

var (
	bucketMeta        = []byte("meta")
	bucketEndpoints   = []byte("endpoints")
	bucketDescriptors = []byte("descriptors")

	keyTarget   = []byte("target")
	keyLastScan = []byte("last_scan")
)

// BoltStore persists discovered endpoints and generated descriptors so a
// fuzzing run can reuse an earlier crawl.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens or creates the state file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketEndpoints, bucketDescriptors} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the state file location.
func (s *BoltStore) Path() string {
	return s.path
}

// SaveTarget records the root URL of the crawl.
func (s *BoltStore) SaveTarget(target string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTarget, []byte(target))
	})
}

// LoadTarget returns the recorded root URL, or "" if none.
func (s *BoltStore) LoadTarget() (string, error) {
	var target string
	err := s.db.View(func(tx *bolt.Tx) error {
		target = string(tx.Bucket(bucketMeta).Get(keyTarget))
		return nil
	})
	return target, err
}

// SaveEndpoints stores endpoints keyed by raw URL. Existing entries are kept,
// matching the registry's first-seen rule.
func (s *BoltStore) SaveEndpoints(endpoints []*registry.Endpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)
		for _, ep := range endpoints {
			key := []byte(ep.Key)
			if b.Get(key) != nil {
				continue
			}
			data, err := json.Marshal(ep)
			if err != nil {
				return fmt.Errorf("failed to marshal endpoint %s: %w", ep.Key, err)
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEndpoints returns every stored endpoint in discovery order.
func (s *BoltStore) LoadEndpoints() ([]*registry.Endpoint, error) {
	var endpoints []*registry.Endpoint

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEndpoints).ForEach(func(k, v []byte) error {
			var ep registry.Endpoint
			if err := json.Unmarshal(v, &ep); err != nil {
				return fmt.Errorf("failed to unmarshal endpoint %s: %w", k, err)
			}
			endpoints = append(endpoints, &ep)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].DiscoveredAt.Before(endpoints[j].DiscoveredAt)
	})
	return endpoints, nil
}

// SaveDescriptors stores the descriptors of one scan and marks it as the latest.
func (s *BoltStore) SaveDescriptors(scanID string, descriptors []descriptor.Descriptor) error {
	data, err := json.Marshal(descriptors)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptors: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketDescriptors).Put([]byte(scanID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastScan, []byte(scanID))
	})
}

// LoadDescriptors returns the descriptors of scanID, or of the latest scan
// when scanID is empty. A missing scan yields nil.
func (s *BoltStore) LoadDescriptors(scanID string) ([]descriptor.Descriptor, error) {
	var descriptors []descriptor.Descriptor

	err := s.db.View(func(tx *bolt.Tx) error {
		id := []byte(scanID)
		if scanID == "" {
			id = tx.Bucket(bucketMeta).Get(keyLastScan)
			if id == nil {
				return nil
			}
		}
		data := tx.Bucket(bucketDescriptors).Get(id)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &descriptors)
	})
	if err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
