package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"docqa/internal/contextutil"
)

// bucketCollections holds one JSON-encoded collectionMeta per collection name.
var bucketCollections = []byte("collections")

type collectionMeta struct {
	VectorSize int `json:"vector_size"`
}

type storedVector struct {
	Vector []float32      `json:"v"`
	Meta   map[string]any `json:"m,omitempty"`
}

type boltCollection struct {
	vectorSize int
	points     map[string]storedVector
}

// BoltStore implements VectorStore on a local bbolt file. Each collection is a
// bucket of JSON-encoded vectors, mirrored in memory for brute-force search.
type BoltStore struct {
	db *bbolt.DB

	mu          sync.RWMutex
	collections map[string]*boltCollection
}

// NewBoltStore opens (or creates) the bbolt file at path and loads every collection into memory.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	s := &BoltStore{
		db:          db,
		collections: make(map[string]*boltCollection),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) load() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketCollections)
		if err != nil {
			return fmt.Errorf("failed to create collections bucket: %w", err)
		}

		return meta.ForEach(func(name, raw []byte) error {
			var cm collectionMeta
			if err := json.Unmarshal(raw, &cm); err != nil {
				return fmt.Errorf("failed to decode collection %s: %w", name, err)
			}
			col := &boltCollection{
				vectorSize: cm.VectorSize,
				points:     make(map[string]storedVector),
			}
			if b := tx.Bucket(name); b != nil {
				if err := b.ForEach(func(k, v []byte) error {
					var sv storedVector
					if err := json.Unmarshal(v, &sv); err != nil {
						// Skip corrupted entries
						return nil
					}
					col.points[string(k)] = sv
					return nil
				}); err != nil {
					return err
				}
			}
			s.collections[string(name)] = col
			return nil
		})
	})
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// EnsureCollection creates the collection bucket or validates its vector size.
func (s *BoltStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if collection == string(bucketCollections) {
		return fmt.Errorf("collection name %q is reserved", collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[collection]; ok {
		if col.vectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, col.vectorSize)
		}
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(collectionMeta{VectorSize: vectorSize})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketCollections).Put([]byte(collection), data); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists([]byte(collection))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.collections[collection] = &boltCollection{
		vectorSize: vectorSize,
		points:     make(map[string]storedVector),
	}
	logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", vectorSize)
	return nil
}

// Upsert inserts or updates points in the collection.
func (s *BoltStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		if len(p.Vec) != col.vectorSize {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", col.vectorSize, len(p.Vec))
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		for _, p := range points {
			data, err := json.Marshal(storedVector{Vector: p.Vec, Meta: p.Meta})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	// Cache only after the transaction committed
	for _, p := range points {
		col.points[p.ID] = storedVector{Vector: p.Vec, Meta: p.Meta}
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search returns the k nearest points to query by brute-force cosine similarity.
// Ties are broken by point ID so results are deterministic.
func (s *BoltStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if len(query) != col.vectorSize {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", col.vectorSize, len(query))
	}

	results := make([]SearchResult, 0, len(col.points))
	for id, sv := range col.points {
		results = append(results, SearchResult{
			PointID: id,
			Score:   float32(cosine(query, sv.Vector)),
			Meta:    sv.Meta,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})

	if k < len(results) {
		results = results[:k]
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// DropCollection deletes the collection bucket and its metadata.
func (s *BoltStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCollections).Delete([]byte(collection)); err != nil {
			return err
		}
		if tx.Bucket([]byte(collection)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(collection))
	})
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}

	delete(s.collections, collection)
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "dropped collection", "collection", collection)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *BoltStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// CollectionInfo returns vector size and point count for a collection.
func (s *BoltStore) CollectionInfo(_ context.Context, collection string) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return &CollectionInfo{
		VectorSize:  col.vectorSize,
		PointsCount: len(col.points),
		Status:      "green",
	}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
