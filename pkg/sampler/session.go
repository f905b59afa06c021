package sampler

import (
	"sync"

	"ghsampler/pkg/stratum"
)

// Unknown marks a count that has not been measured yet.
const Unknown = -1

// CompletedStratum is one finished stratum as shown in the progress
// table.
type CompletedStratum struct {
	Stratum    stratum.Stratum
	Population int
	Sampled    int
}

// Snapshot is a point-in-time view of a running session, safe to hand
// to a renderer on another goroutine.
type Snapshot struct {
	MinSize int
	MaxSize int

	Completed []CompletedStratum

	Stratum    stratum.Stratum
	Population int
	Sampled    int

	EstimatedPopulation int
	TotalSampled        int
	Status              string
}

// Session tracks the live progress of a sampling run. The sampler
// mutates it from the run loop while the terminal display reads
// snapshots from a ticker goroutine, so all access is mutex-guarded.
type Session struct {
	mu sync.Mutex

	minSize int
	maxSize int

	completed []CompletedStratum

	current    stratum.Stratum
	population int
	sampled    int

	estimatedPopulation int
	totalSampled        int
	status              string
}

// NewSession creates a session covering the given size range.
func NewSession(minSize, maxSize int) *Session {
	return &Session{
		minSize:             minSize,
		maxSize:             maxSize,
		population:          Unknown,
		sampled:             Unknown,
		estimatedPopulation: Unknown,
		status:              "starting",
	}
}

// BeginStratum marks s as the stratum currently being harvested.
func (s *Session) BeginStratum(st stratum.Stratum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = st
	s.population = Unknown
	s.sampled = 0
}

// SetPopulation records the population the search reported for the
// current stratum.
func (s *Session) SetPopulation(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.population {
		s.population = n
	}
}

// IncrementSampled counts one sampled item against the current stratum
// and the run total.
func (s *Session) IncrementSampled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampled++
	s.totalSampled++
}

// CompleteStratum moves the current stratum into the completed list.
func (s *Session) CompleteStratum() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, CompletedStratum{
		Stratum:    s.current,
		Population: s.population,
		Sampled:    s.sampled,
	})
	s.current = stratum.Stratum{}
	s.population = Unknown
	s.sampled = Unknown
}

// AddCompleted registers a stratum finished by an earlier run, during
// ledger replay.
func (s *Session) AddCompleted(c CompletedStratum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, c)
	s.totalSampled += c.Sampled
}

// SetEstimate records the whole-range population estimate.
func (s *Session) SetEstimate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimatedPopulation = n
}

// SetStatus updates the human-readable status line.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := make([]CompletedStratum, len(s.completed))
	copy(completed, s.completed)

	return Snapshot{
		MinSize:             s.minSize,
		MaxSize:             s.maxSize,
		Completed:           completed,
		Stratum:             s.current,
		Population:          s.population,
		Sampled:             s.sampled,
		EstimatedPopulation: s.estimatedPopulation,
		TotalSampled:        s.totalSampled,
		Status:              s.status,
	}
}
