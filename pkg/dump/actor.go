package dump

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latticesearch/latticed/pkg/log"
	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updateloop"
)

// ErrDumpDoesNotExist is returned by Info when no dump with the requested
// uid was ever created by this Actor.
var ErrDumpDoesNotExist = errors.New("dump: no such dump")

// Actor tracks at most one in-progress dump at a time. A CreateDump call
// made while one is already running does not start a second: it returns the
// existing DumpInfo, letting callers poll the same job rather than race two
// dumps against the same staging directory.
type Actor struct {
	dumpsDir string
	resolver resolver.Resolver
	loop     *updateloop.Loop

	mu      sync.Mutex
	dumps   map[string]*types.DumpInfo
	current *types.DumpInfo
}

// NewActor constructs an Actor writing archives under dumpsDir.
func NewActor(dumpsDir string, res resolver.Resolver, loop *updateloop.Loop) *Actor {
	return &Actor{
		dumpsDir: dumpsDir,
		resolver: res,
		loop:     loop,
		dumps:    make(map[string]*types.DumpInfo),
	}
}

// CreateDump starts a new dump job, or returns the one already in progress.
// The returned DumpInfo is a snapshot; call Info(uid) for its current state.
func (a *Actor) CreateDump() *types.DumpInfo {
	a.mu.Lock()
	if a.current != nil && a.current.InProgress() {
		snapshot := *a.current
		a.mu.Unlock()
		return &snapshot
	}

	uid := uuid.New().String()
	info := types.NewDumpInfo(uid, time.Now())
	a.dumps[uid] = info
	a.current = info
	a.mu.Unlock()

	go a.run(uid)

	snapshot := *info
	return &snapshot
}

func (a *Actor) run(uid string) {
	logger := log.WithDumpUID(uid)
	logger.Info().Msg("dump started")

	start := time.Now()
	err := runDumpTask(a.dumpsDir, a.resolver, a.loop, uid)

	a.mu.Lock()
	info := a.dumps[uid]
	now := time.Now()
	if err != nil {
		info.WithError(err, now)
	} else {
		info.Done(now)
	}
	status := string(info.Status)
	a.mu.Unlock()

	metrics.DumpsTotal.WithLabelValues(status).Inc()
	metrics.DumpDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error().Err(err).Msg("dump failed")
	} else {
		logger.Info().Msg("dump done")
	}
}

// Info returns a snapshot of the dump identified by uid, or
// ErrDumpDoesNotExist.
func (a *Actor) Info(uid string) (*types.DumpInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.dumps[uid]
	if !ok {
		return nil, ErrDumpDoesNotExist
	}
	snapshot := *info
	return &snapshot, nil
}
