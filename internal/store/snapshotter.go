package store

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// snapshotter persists Store snapshots in the background so the request
// path (which calls Backup after every handled operation) is never blocked
// by disk I/O. Adapted from the teacher's worker pool, which did the same
// non-blocking-submit-with-drop dance for message persistence instead of
// snapshot persistence.
type snapshotter struct {
	path string
	jobs chan snapshotDTO
	wg   sync.WaitGroup
}

func newSnapshotter(workers int, path string) *snapshotter {
	if workers < 1 {
		workers = 1
	}
	sn := &snapshotter{
		path: path,
		jobs: make(chan snapshotDTO, 8),
	}
	for i := 0; i < workers; i++ {
		sn.wg.Add(1)
		go func() {
			defer sn.wg.Done()
			for dto := range sn.jobs {
				if err := writeSnapshot(sn.path, dto); err != nil {
					log.Error().Err(err).Str("path", sn.path).Msg("snapshot write failed")
				}
			}
		}()
	}
	return sn
}

// submit queues dto for writing. Non-blocking: if the queue is full, the
// snapshot is dropped (the next handled request will call Backup again).
func (sn *snapshotter) submit(dto snapshotDTO) {
	select {
	case sn.jobs <- dto:
	default:
		log.Warn().Str("path", sn.path).Msg("snapshot queue full, dropping snapshot")
	}
}

func (sn *snapshotter) stop() {
	close(sn.jobs)
	sn.wg.Wait()
}
