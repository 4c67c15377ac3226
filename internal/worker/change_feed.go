// Package worker drains the document change feed into a publisher.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/logger"
	"github.com/rl1809/versioned-store/internal/metrics"
	"github.com/rl1809/versioned-store/internal/port"
)

const publishTimeout = 5 * time.Second

type Pool struct {
	wg sync.WaitGroup
}

// Start runs count workers until queue is closed. Call Wait after closing the queue.
func Start(count int, queue <-chan domain.ChangeEvent, pub port.ChangePublisher, log *logger.Logger, m *metrics.Metrics) *Pool {
	p := &Pool{}
	if queue == nil {
		return p
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			workerLoop(id, queue, pub, log, m)
		}(i)
	}
	return p
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func workerLoop(id int, queue <-chan domain.ChangeEvent, pub port.ChangePublisher, log *logger.Logger, m *metrics.Metrics) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := pub.PublishChange(ctx, ev); err != nil {
			m.RecordChangePublished("error")
			log.Error().Err(err).
				Int("worker", id).
				Str("document_id", ev.DocumentID.String()).
				Str("version", ev.VersionNumber.String()).
				Msg("failed to publish change")
		} else {
			m.RecordChangePublished("ok")
			log.Debug().
				Int("worker", id).
				Str("document_id", ev.DocumentID.String()).
				Str("kind", string(ev.Kind)).
				Msg("published change")
		}

		cancel()
	}
}
