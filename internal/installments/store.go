package installments

import (
	"context"
	"sync"
	"time"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// Store persists installment plans across statement uploads, keyed by
// reference number. Update must serialize read-merge-write cycles for one
// key: two statements carrying the same reference may be ingested
// concurrently.
type Store interface {
	// Get returns the stored plan for ref, or nil when none exists.
	Get(ctx context.Context, ref string) (*domain.InstallmentPlan, error)

	// Update applies fn to the stored plan for ref (nil when new) and
	// persists the result. Calls for the same ref never interleave.
	Update(ctx context.Context, ref string, fn func(existing *domain.InstallmentPlan) (*domain.InstallmentPlan, error)) (*domain.InstallmentPlan, error)

	// List returns every stored plan.
	List(ctx context.Context) ([]*domain.InstallmentPlan, error)
}

// Reconcile merges a scan's sightings into the store and returns the
// resulting plans keyed by reference. Sightings for one reference are
// applied in order under a single Update so concurrent documents cannot
// lose installments.
func Reconcile(ctx context.Context, store Store, sightings []Sighting, now time.Time) (map[string]*domain.InstallmentPlan, error) {
	byRef := make(map[string][]Sighting)
	var order []string
	for _, s := range sightings {
		if _, seen := byRef[s.ReferenceID]; !seen {
			order = append(order, s.ReferenceID)
		}
		byRef[s.ReferenceID] = append(byRef[s.ReferenceID], s)
	}

	plans := make(map[string]*domain.InstallmentPlan, len(byRef))
	for _, ref := range order {
		group := byRef[ref]
		plan, err := store.Update(ctx, ref, func(existing *domain.InstallmentPlan) (*domain.InstallmentPlan, error) {
			merged := existing
			for _, s := range group {
				merged = Merge(merged, s, now)
			}
			return merged, nil
		})
		if err != nil {
			return nil, err
		}
		plans[ref] = plan
	}
	return plans, nil
}

// MemoryStore is the in-memory Store used by tests and single-instance
// deployments. Plans are lost on restart; the BigQuery-backed store in
// internal/ledger is the durable option.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	plans map[string]*domain.InstallmentPlan
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: make(map[string]*sync.Mutex),
		plans: make(map[string]*domain.InstallmentPlan),
	}
}

func (s *MemoryStore) keyLock(ref string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ref]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ref] = l
	}
	return l
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, ref string) (*domain.InstallmentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[ref]
	if !ok {
		return nil, nil
	}
	cp := clonePlan(plan)
	return cp, nil
}

// Update implements Store: read-merge-write under a per-reference lock.
func (s *MemoryStore) Update(ctx context.Context, ref string, fn func(existing *domain.InstallmentPlan) (*domain.InstallmentPlan, error)) (*domain.InstallmentPlan, error) {
	lock := s.keyLock(ref)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	updated, err := fn(existing)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.plans[ref] = clonePlan(updated)
	s.mu.Unlock()
	return updated, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]*domain.InstallmentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.InstallmentPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, clonePlan(plan))
	}
	return out, nil
}

// clonePlan copies a plan so callers cannot mutate stored state.
func clonePlan(p *domain.InstallmentPlan) *domain.InstallmentPlan {
	cp := *p
	cp.InstallmentsSeen = make([]domain.InstallmentEntry, len(p.InstallmentsSeen))
	copy(cp.InstallmentsSeen, p.InstallmentsSeen)
	return &cp
}
