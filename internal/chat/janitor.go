package chat

import (
	"context"
	"log"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/store"
)

const sweepTimeout = 30 * time.Second

// Janitor enforces the event-log retention window. Each sweep issues one
// conditional range delete per room, so events appended mid-sweep are never
// lost.
type Janitor struct {
	log       *log.Logger
	repo      store.ChatRepository
	retention time.Duration
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func NewJanitor(logger *log.Logger, repo store.ChatRepository, retention, interval time.Duration) *Janitor {
	return &Janitor{
		log:       logger,
		repo:      repo,
		retention: retention,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (j *Janitor) Run() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	roomIds, err := j.repo.ListRoomIds(ctx)
	if err != nil {
		j.log.Println("janitor: list rooms:", err)
		return
	}

	cutoff := time.Now().Add(-j.retention)
	var total int64
	for _, roomId := range roomIds {
		removed, err := j.repo.PruneEvents(ctx, roomId, cutoff)
		if err != nil {
			j.log.Printf("janitor: prune room %s: %v", roomId, err)
			continue
		}
		total += removed
	}

	if total > 0 {
		j.log.Printf("janitor: pruned %d events older than %s", total, cutoff.Format(time.RFC3339))
	}
}

func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
