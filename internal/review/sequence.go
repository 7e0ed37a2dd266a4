package review

import "sync"

// Sequencer hands out monotonically increasing request tokens per dataset.
// Only the most recently issued token's result may be applied.
type Sequencer struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NewSequencer returns an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{last: make(map[string]uint64)}
}

// Next issues a new token for datasetID, superseding all earlier ones.
func (s *Sequencer) Next(datasetID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[datasetID]++
	return s.last[datasetID]
}

// Observe records a token issued elsewhere. Older tokens are ignored.
func (s *Sequencer) Observe(datasetID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token > s.last[datasetID] {
		s.last[datasetID] = token
	}
}

// Current returns the latest token issued for datasetID, 0 if none.
func (s *Sequencer) Current(datasetID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[datasetID]
}

// IsLatest reports whether token is still the newest for datasetID.
func (s *Sequencer) IsLatest(datasetID string, token uint64) bool {
	return token != 0 && s.Current(datasetID) == token
}

// Guard serializes reviews against correction application per dataset.
// Reviews take the read side and may overlap; an apply takes the write side.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[string]*sync.RWMutex)}
}

func (g *Guard) lock(datasetID string) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[datasetID]
	if !ok {
		l = &sync.RWMutex{}
		g.locks[datasetID] = l
	}
	return l
}

// Review holds the dataset's read lock and returns its release func.
func (g *Guard) Review(datasetID string) (release func()) {
	l := g.lock(datasetID)
	l.RLock()
	return l.RUnlock
}

// Apply holds the dataset's write lock and returns its release func.
func (g *Guard) Apply(datasetID string) (release func()) {
	l := g.lock(datasetID)
	l.Lock()
	return l.Unlock
}
