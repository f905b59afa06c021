// Package sampler drives an exhaustive, resumable harvest of GitHub
// code search results. A single search query returns at most 1000
// items, so the run is stratified by file size: each stratum is
// searched in both sort orders when needed, every hit is fetched and
// stored, and the finished stratum is journaled so an interrupted run
// picks up exactly where it left off.
package sampler

import (
	"context"
	"errors"
	"fmt"

	"ghsampler/pkg/github"
	"ghsampler/pkg/ledger"
	"ghsampler/pkg/logger"
	"ghsampler/pkg/store"
	"ghsampler/pkg/stratum"
)

// perQueryCap is the hard ceiling GitHub places on results of a single
// search query. A stratum whose population exceeds it gets a second
// pass in the opposite sort order to reach items past the cutoff.
const perQueryCap = 1000

// SearchClient is the upstream API surface the sampler needs.
type SearchClient interface {
	SearchCode(ctx context.Context, query string, first, last int, order github.Order) (*github.SearchResponse, error)
	NextPage(ctx context.Context, pageURL string) (*github.SearchResponse, error)
	FetchFile(ctx context.Context, fileURL string) (*github.FileContent, error)
}

// ResultStore persists sampled repositories and files.
type ResultStore interface {
	UpsertRepository(ctx context.Context, r store.RepoRecord) error
	InsertFile(ctx context.Context, f store.FileRecord) error
	ContainsFile(ctx context.Context, path string, repoID int64) (bool, error)
}

// ProgressLedger journals completed strata.
type ProgressLedger interface {
	Append(e ledger.Entry) error
}

// Sampler runs the stratified harvest. It is single-threaded: one
// request is in flight at a time, in keeping with the API's secondary
// rate limits.
type Sampler struct {
	client  SearchClient
	store   ResultStore
	ledger  ProgressLedger
	planner *stratum.Planner
	session *Session
	logger  logger.Logger
	query   string
}

// New assembles a sampler.
func New(client SearchClient, st ResultStore, lg ProgressLedger, planner *stratum.Planner, session *Session, query string, log logger.Logger) *Sampler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Sampler{
		client:  client,
		store:   st,
		ledger:  lg,
		planner: planner,
		session: session,
		logger:  log,
		query:   query,
	}
}

// Replay fast-forwards the run past strata recorded by earlier runs.
// Each ledger entry advances the planner by one stratum and folds its
// counts into the session totals. A bounds mismatch between the entry
// and the planner means the run was restarted with different size
// parameters; the entry is honored anyway, with a warning, since the
// journal is the authority on what has been done.
func (s *Sampler) Replay(entries []ledger.Entry) {
	for _, e := range entries {
		if !s.planner.Done() {
			expected := s.planner.Current()
			if e.First != expected.First || e.Last != expected.Last {
				s.logger.WarnWithFields("recorded stratum does not match current plan", map[string]interface{}{
					"recorded": fmt.Sprintf("[%d, %d]", e.First, e.Last),
					"planned":  expected.String(),
				})
			}
		}
		s.session.AddCompleted(CompletedStratum{
			Stratum:    stratum.Stratum{First: e.First, Last: e.Last},
			Population: e.Population,
			Sampled:    e.Sampled,
		})
		s.planner.Advance()
	}

	if len(entries) > 0 {
		s.logger.InfoWithFields("resuming previous run", map[string]interface{}{
			"completed_strata": len(entries),
		})
	}
}

// Run executes the harvest from the planner's current position to the
// end of the size range. It returns ctx.Err() when interrupted, nil on
// completion.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.estimatePopulation(ctx); err != nil {
		return err
	}

	for !s.planner.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		st := s.planner.Current()
		s.session.BeginStratum(st)
		s.session.SetStatus(fmt.Sprintf("sampling stratum %s", st))

		population, sampled, err := s.harvestStratum(ctx, st)
		if err != nil {
			return err
		}

		// The journal row lands before any in-memory advance, so a
		// crash between the two replays the stratum as completed.
		if err := s.ledger.Append(ledger.Entry{
			First:      st.First,
			Last:       st.Last,
			Population: population,
			Sampled:    sampled,
		}); err != nil {
			return err
		}

		s.session.CompleteStratum()
		s.planner.Advance()

		s.logger.InfoWithFields("stratum complete", map[string]interface{}{
			"stratum":    st.String(),
			"population": population,
			"sampled":    sampled,
		})
	}

	s.session.SetStatus("done")
	return nil
}

// estimatePopulation runs one unstratified search over the whole size
// range to size up the job. The count is display-only; the harvest
// never trusts it.
func (s *Sampler) estimatePopulation(ctx context.Context) error {
	s.session.SetStatus("estimating population")

	snap := s.session.Snapshot()
	resp, err := s.client.SearchCode(ctx, s.query, snap.MinSize, snap.MaxSize, github.OrderAsc)
	if err != nil {
		return fmt.Errorf("failed to estimate population: %w", err)
	}
	s.session.SetEstimate(resp.TotalCount)

	s.logger.InfoWithFields("estimated population", map[string]interface{}{
		"total": resp.TotalCount,
	})
	return nil
}

// harvestStratum exhausts one stratum. The forward (ascending) pass
// always runs; if the reported population exceeds the per-query cap, a
// second descending pass reaches the tail the first pass could not.
// The stratum's population is the larger of the two reports, since
// the counts fluctuate between queries.
func (s *Sampler) harvestStratum(ctx context.Context, st stratum.Stratum) (population, sampled int, err error) {
	population, sampled, err = s.drainPass(ctx, st, github.OrderAsc, sampled)
	if err != nil {
		return 0, 0, err
	}

	if population > perQueryCap {
		s.logger.DebugWithFields("population exceeds query cap, running reverse pass", map[string]interface{}{
			"stratum":    st.String(),
			"population": population,
		})
		var reversePop int
		reversePop, sampled, err = s.drainPass(ctx, st, github.OrderDesc, sampled)
		if err != nil {
			return 0, 0, err
		}
		if reversePop > population {
			population = reversePop
		}
		s.session.SetPopulation(population)
	}

	return population, sampled, nil
}

// drainPass walks every page of one search pass, processing items as
// it goes. It returns the population that pass reported and the
// updated sampled count.
func (s *Sampler) drainPass(ctx context.Context, st stratum.Stratum, order github.Order, sampled int) (int, int, error) {
	resp, err := s.client.SearchCode(ctx, s.query, st.First, st.Last, order)
	if err != nil {
		return 0, 0, fmt.Errorf("search failed for stratum %s: %w", st, err)
	}
	population := resp.TotalCount
	s.session.SetPopulation(population)

	for {
		n, err := s.processPage(ctx, resp.Items)
		if err != nil {
			return 0, 0, err
		}
		sampled += n

		if resp.NextPage == "" {
			break
		}
		resp, err = s.client.NextPage(ctx, resp.NextPage)
		if err != nil {
			return 0, 0, fmt.Errorf("pagination failed for stratum %s: %w", st, err)
		}
	}

	return population, sampled, nil
}

// processPage samples every item on one results page. An item counts
// as sampled once its fate is settled: stored, already known, or
// skipped after a non-retryable per-item failure. Only storage errors
// and context cancellation abort the run.
func (s *Sampler) processPage(ctx context.Context, items []github.SearchItem) (int, error) {
	sampled := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sampled, err
		}

		known, err := s.store.ContainsFile(ctx, item.Path, item.Repository.ID)
		if err != nil {
			return sampled, err
		}
		if known {
			sampled++
			s.session.IncrementSampled()
			continue
		}

		file, err := s.client.FetchFile(ctx, item.URL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sampled, err
			}
			s.logger.WarnWithFields("skipping item, fetch failed", map[string]interface{}{
				"path":  item.Path,
				"repo":  item.Repository.FullName,
				"error": err.Error(),
			})
			sampled++
			s.session.IncrementSampled()
			continue
		}

		if file.Type != "file" {
			s.logger.DebugWithFields("skipping non-file item", map[string]interface{}{
				"path": item.Path,
				"type": file.Type,
			})
			sampled++
			s.session.IncrementSampled()
			continue
		}

		content, err := file.Decode()
		if err != nil {
			s.logger.WarnWithFields("skipping item, undecodable content", map[string]interface{}{
				"path":  item.Path,
				"repo":  item.Repository.FullName,
				"error": err.Error(),
			})
			sampled++
			s.session.IncrementSampled()
			continue
		}

		if err := s.store.UpsertRepository(ctx, store.RepoRecord{
			ID:          item.Repository.ID,
			Name:        item.Repository.Name,
			FullName:    item.Repository.FullName,
			Description: item.Repository.Description,
			URL:         item.Repository.HTMLURL,
			Fork:        item.Repository.Fork,
			OwnerID:     item.Repository.Owner.ID,
			OwnerLogin:  item.Repository.Owner.Login,
		}); err != nil {
			return sampled, err
		}

		if err := s.store.InsertFile(ctx, store.FileRecord{
			Name:    file.Name,
			Path:    file.Path,
			Size:    file.Size,
			SHA:     file.SHA,
			Content: string(content),
			RepoID:  item.Repository.ID,
		}); err != nil {
			return sampled, err
		}

		sampled++
		s.session.IncrementSampled()
	}
	return sampled, nil
}
