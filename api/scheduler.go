/*
scheduler.go - Order check scheduler

PURPOSE:
  Drives every tracked order through the check state machine until its SAP
  number appears, and raises the one-time staleness warning.

TRIGGERS:
  - Add: an immediate check for the new order
  - Start: one check per due order, each after its own random jitter so a
    restart does not burst the backend
  - Ticker: every CheckInterval, one check per due order plus the
    staleness sweep

  An order is due when it has no SAP number and was last checked more than
  RecheckThreshold ago.

CHECK OUTCOMES:
  - found:      sapNumber set, status resolved, success notification
  - not found:  status pending
  - failure:    status error, lastError kept, logged and never re-raised

IN-FLIGHT SUPPRESSION:
  A trigger for an order whose check is still running is dropped, so two
  checks of the same order never overlap. After Stop every trigger is
  dropped until the next Start.

CONFIGURATION:
  - CheckInterval:    How often the periodic pass runs (default: 5 minutes)
  - RecheckThreshold: Minimum time between checks of one order (default: 10 minutes)
  - WarningThreshold: Age at which an unresolved order is flagged (default: 24 hours)
  - Enabled:          Whether Start runs the startup and periodic triggers (default: true)

USAGE:
  scheduler := NewScheduler(registry, resolver, notifier)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AddOrder and CheckOrder endpoints
  - resolver/resolver.go: The backend lookup
  - tracker/registry.go: Where outcomes are persisted
*/
package api

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
)

// Resolver looks up the SAP document number of an order.
type Resolver interface {
	Resolve(ctx context.Context, orderNumber string) (documentNumber string, found bool, err error)
}

// Scheduler owns the check state machine for all tracked orders.
type Scheduler struct {
	Registry *tracker.Registry
	Resolver Resolver
	Notifier tracker.Notifier

	CheckInterval    time.Duration
	RecheckThreshold time.Duration
	WarningThreshold time.Duration
	Enabled          bool

	// Now and Jitter are replaceable for tests.
	Now    func() time.Time
	Jitter func() time.Duration

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	timers  []*time.Timer
	lastRun time.Time

	checks   sync.WaitGroup
	flightMu sync.Mutex
	inFlight map[string]bool
	stopped  bool
}

// NewScheduler creates a new scheduler with production defaults.
func NewScheduler(registry *tracker.Registry, resolver Resolver, notifier tracker.Notifier) *Scheduler {
	return &Scheduler{
		Registry:         registry,
		Resolver:         resolver,
		Notifier:         notifier,
		CheckInterval:    5 * time.Minute,
		RecheckThreshold: 10 * time.Minute,
		WarningThreshold: 24 * time.Hour,
		Enabled:          true,
		Now:              time.Now,
		Jitter:           startupJitter,
		inFlight:         make(map[string]bool),
	}
}

// startupJitter returns a delay in [1s, 6s).
func startupJitter() time.Duration {
	return time.Second + time.Duration(rand.Int63n(int64(5*time.Second)))
}

// Start schedules the startup checks and begins the periodic pass.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.flightMu.Lock()
	s.stopped = false
	s.flightMu.Unlock()

	s.scheduleStartupChecksLocked()

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.lastRun = s.Now()
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the ticker and pending startup checks, then waits for every
// in-flight check to finish. In-flight backend calls are not cancelled.
// Triggers arriving during or after Stop are dropped.
func (s *Scheduler) Stop() {
	s.flightMu.Lock()
	s.stopped = true
	s.flightMu.Unlock()

	s.mu.Lock()
	ticker, stop, timers := s.ticker, s.stop, s.timers
	s.ticker, s.timers = nil, nil
	s.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
	for _, t := range timers {
		if t.Stop() {
			s.checks.Done()
		}
	}

	s.checks.Wait()
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.lastRun = s.Now()
			s.mu.Unlock()
			s.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) scheduleStartupChecksLocked() {
	now := s.Now()
	scheduled := 0
	for _, order := range s.Registry.List() {
		if !order.DueForCheck(now, s.RecheckThreshold) {
			continue
		}
		orderNumber := order.OrderNumber
		s.checks.Add(1)
		s.timers = append(s.timers, time.AfterFunc(s.Jitter(), func() {
			defer s.checks.Done()
			s.runCheck(orderNumber)
		}))
		scheduled++
	}
	if scheduled > 0 {
		log.Printf("[Scheduler] Scheduled %d startup checks", scheduled)
	}
}

// Add starts tracking orderNumber and checks it immediately.
func (s *Scheduler) Add(ctx context.Context, orderNumber string) (tracker.TrackedOrder, error) {
	order, err := s.Registry.Add(ctx, orderNumber)
	if err != nil {
		return order, err
	}
	s.trigger(order.OrderNumber)
	return order, nil
}

// CheckNow triggers a check of one order regardless of when it was last checked.
// It returns false when a check for that order is already running.
func (s *Scheduler) CheckNow(orderNumber string) (bool, error) {
	if _, ok := s.Registry.Get(orderNumber); !ok {
		return false, fmt.Errorf("%w: %s", tracker.ErrOrderNotFound, orderNumber)
	}
	return s.trigger(orderNumber), nil
}

// RunNow performs one periodic pass immediately (for testing/admin).
func (s *Scheduler) RunNow() {
	s.checkAndProcess()
}

// Wait blocks until every started check has finished.
func (s *Scheduler) Wait() {
	s.checks.Wait()
}

// GetNextRunTime returns when the next periodic pass will occur.
func (s *Scheduler) GetNextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return s.Now().Add(s.CheckInterval)
	}
	return s.lastRun.Add(s.CheckInterval)
}

// Running reports whether the periodic pass is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// InFlight reports whether a check for orderNumber is running.
func (s *Scheduler) InFlight(orderNumber string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	return s.inFlight[orderNumber]
}

func (s *Scheduler) checkAndProcess() {
	ctx := context.Background()
	now := s.Now()

	triggered, warned := 0, 0
	for _, order := range s.Registry.List() {
		if order.DueForCheck(now, s.RecheckThreshold) && s.trigger(order.OrderNumber) {
			triggered++
		}
		if order.DueForStaleWarning(now, s.WarningThreshold) {
			s.warnStale(ctx, order)
			warned++
		}
	}

	if triggered > 0 || warned > 0 {
		log.Printf("[Scheduler] Pass at %v: %d checks triggered, %d stale warnings", now.Format(time.RFC3339), triggered, warned)
	}
}

func (s *Scheduler) warnStale(ctx context.Context, order tracker.TrackedOrder) {
	if err := s.Notifier.Notify(ctx, tracker.Notification{
		Kind:        tracker.NotifyWarning,
		OrderNumber: order.OrderNumber,
		CreatedAt:   s.Now(),
	}); err != nil {
		log.Printf("[Scheduler] Error sending stale warning for %s: %v", order.OrderNumber, err)
	}
	warned := true
	s.update(ctx, order.OrderNumber, tracker.OrderUpdate{WarnedStale: &warned})
}

// trigger starts a background check unless one is already running or the
// scheduler is stopped. checks.Add happens under flightMu so it is ordered
// before the checks.Wait in Stop.
func (s *Scheduler) trigger(orderNumber string) bool {
	s.flightMu.Lock()
	switch {
	case s.stopped:
		s.flightMu.Unlock()
		log.Printf("[Scheduler] Stopped, not checking %s", orderNumber)
		return false
	case s.inFlight[orderNumber]:
		s.flightMu.Unlock()
		log.Printf("[Scheduler] Check for %s already in flight, skipping", orderNumber)
		return false
	}
	s.inFlight[orderNumber] = true
	s.checks.Add(1)
	s.flightMu.Unlock()

	go func() {
		defer s.checks.Done()
		defer s.release(orderNumber)
		s.check(context.Background(), orderNumber)
	}()
	return true
}

func (s *Scheduler) runCheck(orderNumber string) {
	if !s.acquire(orderNumber) {
		return
	}
	defer s.release(orderNumber)
	s.check(context.Background(), orderNumber)
}

func (s *Scheduler) acquire(orderNumber string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[orderNumber] {
		return false
	}
	s.inFlight[orderNumber] = true
	return true
}

func (s *Scheduler) release(orderNumber string) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, orderNumber)
}

// check runs one resolution for orderNumber and records its outcome.
func (s *Scheduler) check(ctx context.Context, orderNumber string) {
	order, ok := s.Registry.Get(orderNumber)
	if !ok || order.Resolved() {
		return
	}

	log.Printf("[Scheduler] Checking SAP number for order %s", orderNumber)
	startedAt := s.Now()
	checking := tracker.StatusChecking
	s.update(ctx, orderNumber, tracker.OrderUpdate{Status: &checking, LastCheckedAt: &startedAt})

	doc, found, err := s.resolve(ctx, orderNumber)

	finishedAt := s.Now()
	switch {
	case err != nil:
		log.Printf("[Scheduler] Error checking order %s: %v", orderNumber, err)
		status, detail := tracker.StatusError, err.Error()
		s.update(ctx, orderNumber, tracker.OrderUpdate{Status: &status, LastCheckedAt: &finishedAt, LastError: &detail})

	case found:
		status, cleared := tracker.StatusResolved, ""
		if !s.update(ctx, orderNumber, tracker.OrderUpdate{
			SapNumber:     &doc,
			Status:        &status,
			LastCheckedAt: &finishedAt,
			LastError:     &cleared,
		}) {
			return
		}
		log.Printf("[Scheduler] SAP number %s found for order %s", doc, orderNumber)
		if err := s.Notifier.Notify(ctx, tracker.Notification{
			Kind:           tracker.NotifySuccess,
			OrderNumber:    orderNumber,
			DocumentNumber: doc,
			CreatedAt:      finishedAt,
		}); err != nil {
			log.Printf("[Scheduler] Error sending success notification for %s: %v", orderNumber, err)
		}

	default:
		status, cleared := tracker.StatusPending, ""
		s.update(ctx, orderNumber, tracker.OrderUpdate{Status: &status, LastCheckedAt: &finishedAt, LastError: &cleared})
	}
}

// resolve calls the resolver, turning a panic into an error so one order
// cannot take the process down.
func (s *Scheduler) resolve(ctx context.Context, orderNumber string) (doc string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, found, err = "", false, fmt.Errorf("resolver panic: %v", r)
		}
	}()
	return s.Resolver.Resolve(ctx, orderNumber)
}

// update applies u and reports whether it was stored. It is false when the
// order is gone or the write failed.
func (s *Scheduler) update(ctx context.Context, orderNumber string, u tracker.OrderUpdate) bool {
	ok, err := s.Registry.Update(ctx, orderNumber, u)
	if err != nil {
		log.Printf("[Scheduler] Error saving order %s: %v", orderNumber, err)
		return false
	}
	return ok
}
