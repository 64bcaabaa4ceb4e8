package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/anansi-ai/anansi/internal/types"
)

// MemoryStore keeps records in a map guarded by a RWMutex. The first write
// fixes the dimension; all later writes and queries must match it.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[types.ID]Record
	metric    Metric
	dimension int
	closed    bool
}

// NewMemoryStore creates an empty store. An invalid metric falls back to
// cosine.
func NewMemoryStore(metric Metric) *MemoryStore {
	if !metric.IsValid() {
		metric = MetricCosine
	}
	return &MemoryStore{
		records: make(map[types.ID]Record),
		metric:  metric,
	}
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return types.NewError(types.VECTOR_UNAVAILABLE, "vector store is closed")
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, record Record) error {
	return s.UpsertBatch(ctx, []Record{record})
}

func (s *MemoryStore) UpsertBatch(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	// Validate the whole batch first so a mid-batch mismatch cannot leave
	// a partial write.
	established := s.dimension
	for _, rec := range records {
		if err := checkDimension(established, len(rec.Embedding)); err != nil {
			return err
		}
		if established == 0 {
			established = len(rec.Embedding)
		}
		if err := rec.ChunkID.Validate(); err != nil {
			return types.WrapError(types.VECTOR_STORE_FAILED, "invalid chunk ID", err)
		}
	}
	s.dimension = established
	for _, rec := range records {
		s.records[rec.ChunkID] = rec
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, query []float64, opts SearchOptions) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		return nil, nil
	}
	if err := checkDimension(s.dimension, len(query)); err != nil {
		return nil, err
	}

	var docFilter map[types.ID]bool
	if len(opts.DocumentIDs) > 0 {
		docFilter = make(map[types.ID]bool, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			docFilter[id] = true
		}
	}

	queryNorm := Norm(query)
	hits := make([]Hit, 0, len(s.records))
	for _, rec := range s.records {
		if docFilter != nil && !docFilter[rec.DocumentID] {
			continue
		}
		sc := score(s.metric, query, queryNorm, rec)
		if opts.MinScore != 0 && sc < opts.MinScore {
			continue
		}
		hits = append(hits, Hit{Record: rec, Score: sc})
	}
	sortHits(hits)
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func (s *MemoryStore) Get(_ context.Context, chunkID types.ID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec, ok := s.records[chunkID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, chunkIDs []types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, id := range chunkIDs {
		delete(s.records, id)
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(_ context.Context, documentID types.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	removed := 0
	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Has(_ context.Context, chunkID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok := s.records[chunkID]
	return ok, nil
}

func (s *MemoryStore) ChunkIDs(_ context.Context) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return len(s.records), nil
}

func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *MemoryStore) Health(_ context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Unhealthy("vector store is closed")
	}
	return types.Healthy(fmt.Sprintf("%d vectors, dimension %d", len(s.records), s.dimension))
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
