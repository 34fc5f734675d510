package retention

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/log"
	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

// defaultInterval is how often the Sweeper runs a cycle.
const defaultInterval = 1 * time.Minute

// Sweeper periodically reclaims File Store payloads that the Update Store no
// longer needs: ones whose record reached a terminal status more than Grace
// ago, and ones with no owning record at all.
type Sweeper struct {
	store    *updatestore.Store
	files    *filestore.Store
	grace    time.Duration
	interval time.Duration
	logger   zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper constructs a Sweeper. grace is the retention window; a zero
// grace is still valid to construct (the writer already deletes inline in
// that case) but the Sweeper keeps running to catch crash-orphaned payloads.
func NewSweeper(store *updatestore.Store, files *filestore.Store, grace time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		files:    files,
		grace:    grace,
		interval: defaultInterval,
		logger:   log.WithComponent("retention-sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the sweep loop to exit and waits for it to do so.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("retention sweeper started")

	for {
		select {
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				s.logger.Error().Err(err).Msg("retention sweep failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("retention sweeper stopped")
			return
		}
	}
}

// Sweep runs one reclamation cycle and returns the first error it hits; the
// number of payloads it deleted goes to the RetentionOrphansDeleted counter
// and the log, not to the caller. It is safe to call directly (outside the ticker loop), which the
// Dump Task does not need but a manual `latticed retention sweep` command
// could.
func (s *Sweeper) Sweep() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RetentionSweepDuration)
		metrics.RetentionSweepsTotal.Inc()
	}()

	live, err := s.liveContentIDs()
	if err != nil {
		return err
	}

	ids, err := s.files.ListIDs()
	if err != nil {
		return err
	}

	var deleted int
	for _, id := range ids {
		if live[id] {
			continue
		}
		if err := s.files.Delete(id); err != nil {
			return err
		}
		deleted++
	}

	if deleted > 0 {
		metrics.RetentionOrphansDeleted.Add(float64(deleted))
		s.logger.Info().Int("deleted", deleted).Msg("retention sweep reclaimed payloads")
	}

	return nil
}

// liveContentIDs returns the set of content ids that must not be deleted:
// every DocumentAddition record that is not yet terminal, plus every
// terminal one still inside its grace window.
func (s *Sweeper) liveContentIDs() (map[string]bool, error) {
	records, err := s.store.DocumentAdditionRecords()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	live := make(map[string]bool, len(records))
	for _, rec := range records {
		if !rec.Status.Terminal() {
			live[string(rec.Kind.ContentID)] = true
			continue
		}
		if rec.FinishedAt == nil || now.Sub(*rec.FinishedAt) < s.grace {
			live[string(rec.Kind.ContentID)] = true
		}
	}
	return live, nil
}
