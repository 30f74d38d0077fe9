package poll

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/autoclass/attendd/internal/attend"
	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/registry"
)

// Poller drives one attendance cycle over all registered accounts on a
// fixed cadence, plus on-demand cycles triggered from the console or the
// admin API.
type Poller struct {
	svc      *attend.Service
	reg      *registry.Registry
	interval time.Duration
	cron     *cron.Cron

	// cycleMu serializes cycles. Cron fires at a fixed rate regardless of
	// how long a cycle takes, so a slow cycle makes the next one run
	// back-to-back instead of a minute later. That is the intended cadence
	// model, not a bug.
	cycleMu sync.Mutex
}

// New creates a poller over the shared registry.
func New(svc *attend.Service, reg *registry.Registry, interval time.Duration) *Poller {
	return &Poller{
		svc:      svc,
		reg:      reg,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start runs an immediate first cycle and then schedules one per interval
// until the context is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, func() {
		p.RunCycle(ctx, false)
	}); err != nil {
		return fmt.Errorf("schedule poll job: %w", err)
	}

	go p.RunCycle(ctx, false)
	p.cron.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the timer. An in-flight cycle finishes on its own.
func (p *Poller) Stop() {
	p.cron.Stop()
}

// RunNow runs an out-of-band cycle, bypassing the timer, and forces a
// schedule reload for every account.
func (p *Poller) RunNow(ctx context.Context) {
	p.RunCycle(ctx, true)
}

// RunCycle processes every registered account sequentially. A failure on
// one account is logged and skipped so it never blocks the others or the
// next tick.
func (p *Poller) RunCycle(ctx context.Context, forceRefresh bool) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	accounts := p.reg.Snapshot()
	if len(accounts) == 0 {
		return
	}

	tickID := uuid.New()
	start := time.Now()
	log.Printf("tick %s: checking %d account(s)", tickID, len(accounts))

	for _, acct := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := p.svc.ProcessAccount(ctx, acct, time.Now(), tickID, forceRefresh); err != nil {
			log.Printf("tick %s: account %s: %v", tickID, model.MaskStudentNumber(acct.StudentNumber), err)
		}
	}

	if elapsed := time.Since(start); elapsed > p.interval {
		log.Printf("tick %s: cycle took %s, longer than the %s interval", tickID, elapsed.Round(time.Millisecond), p.interval)
	}
}
