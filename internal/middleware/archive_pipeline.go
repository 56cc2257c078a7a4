package middleware

import (
	"context"
	"sync"
	"time"

	"StratTune/internal/domain/models"
	domrepo "StratTune/internal/domain/repository"
)

// archiveItem carries one record through the pipeline.
type archiveItem struct {
	sample *models.DiagnosticSample
	trade  *models.Trade
}

// ArchivePipeline mirrors accepted samples and trades into the long-horizon
// archive without ever blocking ingest. Records are queued onto a bounded
// channel; a background flusher writes them with exponential backoff when the
// archive is unavailable. When the buffer is full the newest record is
// dropped and counted.
type ArchivePipeline struct {
	archiver domrepo.Archiver
	metrics  domrepo.Metrics
	bufSize  int
	bufCh    chan archiveItem
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

type PipelineOption func(*ArchivePipeline)

// WithBufferSize sets the queue capacity between ingest and the flusher.
func WithBufferSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewArchivePipeline creates a pipeline in front of the given archiver.
func NewArchivePipeline(archiver domrepo.Archiver, metrics domrepo.Metrics, opts ...PipelineOption) *ArchivePipeline {
	p := &ArchivePipeline{
		archiver: archiver,
		metrics:  metrics,
		bufSize:  2000,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan archiveItem, p.bufSize)
	return p
}

// Start launches the background flusher.
func (p *ArchivePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case item := <-p.bufCh:
				if err := p.flush(ctx, item); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("archive_flush")
					select {
					case <-p.stopCh:
						return
					case <-time.After(backoff):
					}
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- item:
					default:
						p.metrics.RecordSkip("archive_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the flusher and waits for it to exit. Buffered records that were
// not flushed yet are discarded.
func (p *ArchivePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

func (p *ArchivePipeline) flush(ctx context.Context, item archiveItem) error {
	start := time.Now()
	var err error
	switch {
	case item.sample != nil:
		err = p.archiver.ArchiveSample(ctx, item.sample)
	case item.trade != nil:
		err = p.archiver.ArchiveTrade(ctx, item.trade)
	}
	if err == nil {
		p.metrics.RecordLatency("archive_flush", time.Since(start).Seconds())
	}
	return err
}

func (p *ArchivePipeline) enqueue(item archiveItem) {
	select {
	case p.bufCh <- item:
	default:
		p.metrics.RecordSkip("archive_buffer_full")
	}
}

// OnSample implements the controller listener.
func (p *ArchivePipeline) OnSample(s *models.DiagnosticSample) {
	p.enqueue(archiveItem{sample: s})
}

// OnTrade implements the controller listener.
func (p *ArchivePipeline) OnTrade(t *models.Trade) {
	p.enqueue(archiveItem{trade: t})
}

// OnAutoApply implements the controller listener. Auto-apply events go to the
// audit topic, not the archive.
func (p *ArchivePipeline) OnAutoApply(ev *models.AutoApplyEvent) {}
