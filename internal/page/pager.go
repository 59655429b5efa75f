package page

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/logging"
	"github.com/ChaseHampton/lapida/internal/processor"
	"go.uber.org/zap"
)

const queueSize = 1000

type SearchProcessor interface {
	ProcessSingleSearch(ctx context.Context, page db.Page) error
}

type PageSource interface {
	GetReservedPageBatch(ctx context.Context) ([]db.Page, error)
}

type Pager struct {
	proc           SearchProcessor
	source         PageSource
	pproc          *processor.PageProcessor
	maxConcurrency int
	pageDelay      time.Duration
	logger         *zap.Logger
}

func NewPager(proc SearchProcessor, source PageSource, pproc *processor.PageProcessor, cfg config.ProcessorConfig, logger *zap.Logger) *Pager {
	logger = logging.OrNop(logger)
	return &Pager{
		proc:           proc,
		source:         source,
		pproc:          pproc,
		maxConcurrency: max(cfg.MaxConcurrency, 1),
		pageDelay:      cfg.PageDelay,
		logger:         logger,
	}
}

// WorkerPool drains the reserved pages with maxConcurrency consumers. A page
// that fails is reported as failed and the pool keeps going; only a failure
// to read pages or a cancelled ctx stops it. The page processor channel is
// closed and drained before WorkerPool returns.
func (p *Pager) WorkerPool(ctx context.Context) error {
	p.logger.Info("starting worker pool", zap.Int("workers", p.maxConcurrency))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pagequeue := make(chan db.Page, queueSize)
	errchan := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < p.maxConcurrency; i++ {
		wg.Add(1)
		go p.pageConsumer(ctx, pagequeue, p.pproc.Channel(), &wg)
	}

	go p.pageProducer(ctx, pagequeue, errchan)

	return p.WaitForCompletion(ctx, cancel, &wg, errchan)
}

func (p *Pager) WaitForCompletion(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, errchan <-chan error) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(p.pproc.Channel())
		close(done)
	}()

	var err error
	select {
	case err = <-errchan:
		cancel()
		<-done
	case <-done:
		select {
		case err = <-errchan:
		default:
		}
	}
	if waitErr := p.pproc.WaitForCompletion(context.WithoutCancel(ctx)); waitErr != nil && err == nil {
		err = waitErr
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (p *Pager) pageProducer(ctx context.Context, pagequeue chan<- db.Page, errchan chan<- error) {
	defer close(pagequeue)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pagebatch, err := p.source.GetReservedPageBatch(ctx)
		if err != nil {
			select {
			case errchan <- err:
			default:
			}
			return
		}

		if len(pagebatch) == 0 {
			p.logger.Info("no more pages to process")
			return
		}
		for _, page := range pagebatch {
			select {
			case pagequeue <- page:
			case <-ctx.Done():
				return
			}
		}
		p.logger.Debug("produced pages", zap.Int("count", len(pagebatch)))
	}
}

func (p *Pager) pageConsumer(ctx context.Context, pagequeue <-chan db.Page, pageup chan<- processor.PageUpdate, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case page, ok := <-pagequeue:
			if !ok {
				return
			}
			if err := jitteredPause(ctx, p.pageDelay, 0.3); err != nil {
				return
			}
			err := p.proc.ProcessSingleSearch(ctx, page)
			if ctx.Err() != nil {
				// the page stays reserved and is retried by the next run
				return
			}

			update := processor.GetPageUpdate(&page, processor.PageCompleted, nil)
			if err != nil {
				p.logger.Warn("error processing page",
					zap.Int("page", page.PageNumber),
					zap.Int("page_id", page.PageId),
					zap.Error(err))
				update = processor.GetPageUpdate(&page, processor.PageFailed, err)
			}
			pageup <- update
		case <-ctx.Done():
			return
		}
	}
}

func jitteredPause(ctx context.Context, baseDelay time.Duration, jitterPercent float64) error {
	if baseDelay <= 0 {
		return ctx.Err()
	}
	jitterrange := time.Duration(float64(baseDelay) * jitterPercent)

	var jitter time.Duration
	if jitterrange > 0 {
		jitter = time.Duration(rand.Int63n(int64(2*jitterrange))) - jitterrange
	}

	delay := baseDelay + jitter
	if delay < 0 {
		delay = baseDelay / 2
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jittered pause: %w", ctx.Err())
	}
}
