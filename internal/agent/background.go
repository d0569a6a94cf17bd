package agent

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/mtconnect-go/agent/pkg/log"
)

// scheduler holds the small set of long-lived background goroutines an
// Agent runs besides its adapter clients, wired with gocron exactly as
// the teacher's internal/taskManager schedules its own services: a
// single gocron.Scheduler, one NewJob per declarative task, Start/
// Shutdown bracketing the agent's lifetime.
type scheduler struct {
	s gocron.Scheduler
}

// StartBackgroundTasks registers and starts the stride-checkpoint
// compaction log and the asset-store idle log, returning a handle whose
// Shutdown stops them. Safe to call at most once per Agent.
func (a *Agent) StartBackgroundTasks() (*scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, newError(ErrConfigError, "create background scheduler: %v", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() { a.logCheckpointCompaction() }),
	); err != nil {
		return nil, newError(ErrConfigError, "register checkpoint compaction job: %v", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(30*time.Minute),
		gocron.NewTask(func() { a.logAssetIdle() }),
	); err != nil {
		return nil, newError(ErrConfigError, "register asset idle job: %v", err)
	}

	s.Start()
	return &scheduler{s: s}, nil
}

// Shutdown stops every registered background task and waits for it to
// finish its current run.
func (b *scheduler) Shutdown() error {
	return b.s.Shutdown()
}

// logCheckpointCompaction reports the buffer's retained sequence window
// (firstSequence, nextSequence and their difference), the same kind of
// periodic bookkeeping log the teacher's retention service emits on each run.
func (a *Agent) logCheckpointCompaction() {
	first, next := a.FirstSequence(), a.NextSequence()
	log.Infof("[AGENT]> buffer holds observations %d..%d (%d total)", first, next, next-first)
}

// logAssetIdle reports the current asset store occupancy, mirroring the
// teacher's RegisterCompressionService-style periodic size log.
func (a *Agent) logAssetIdle() {
	log.Infof("[AGENT]> asset store holds %d/%d assets", a.assets.Len(), a.cfg.MaxAssets)
}
