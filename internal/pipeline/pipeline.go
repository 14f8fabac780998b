// Package pipeline runs the scene stages on a single goroutine fed by a
// bounded batch queue and hands the resulting events to publishers.
package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/monitoring"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/stitch"
	"github.com/banshee-data/dataq/internal/timeutil"
)

var (
	// ErrQueueFull is returned by TrySubmit when the batch queue is full.
	ErrQueueFull = errors.New("pipeline: queue full")
	// ErrClosed is returned once Run has exited.
	ErrClosed = errors.New("pipeline: closed")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("pipeline: already running")
)

// AnomalySignalName is the name carried by anomaly signal events.
const AnomalySignalName = "anomaly"

type control struct {
	settings Settings
	done     chan struct{}
}

// Pipeline owns every stage. Stage state is touched only by the Run
// goroutine; the accessors below read mutex-guarded or atomic copies.
type Pipeline struct {
	opts       Options
	clock      timeutil.Clock
	publishers []Publisher

	batches chan Batch
	control chan control
	events  chan Event
	closed  chan struct{}
	running atomic.Bool
	dropped atomic.Uint64
	live    atomic.Int64
	started time.Time

	// owned by Run
	settings   Settings
	tracker    *scene.Tracker
	paths      *scene.PathBuilder
	latch      *anomaly.Latch
	occupancy  *occupancy.Aggregator
	lastStatus time.Time
	sceneAt    time.Time // time of the latest batch
	hostAt     time.Time // host time when sceneAt was taken

	// safe for concurrent use
	stitcher  *stitch.Stitcher
	evaluator *anomaly.Evaluator

	mu          sync.RWMutex
	view        Settings
	lastOccView occupancy.Snapshot
}

// New creates a pipeline. Publishers receive every enabled event in order.
func New(settings Settings, opts Options, publishers ...Publisher) *Pipeline {
	opts = opts.withDefaults()
	p := &Pipeline{
		opts:       opts,
		clock:      opts.Clock,
		publishers: publishers,
		batches:    make(chan Batch, opts.QueueSize),
		control:    make(chan control),
		events:     make(chan Event, opts.EventQueueSize),
		closed:     make(chan struct{}),
		started:    opts.Clock.Now(),
		settings:   settings,
		tracker:    scene.NewTracker(settings.Tracker),
		paths:      scene.NewPathBuilder(),
		latch:      anomaly.NewLatch(settings.Anomaly.ClearDelay()),
		occupancy:  occupancy.NewAggregator(settings.Occupancy),
		stitcher:   stitch.New(settings.Stitch),
		evaluator:  anomaly.NewEvaluator(settings.Anomaly),
		view:       settings,
	}
	p.lastStatus = p.started
	return p
}

// Submit queues a batch, blocking while the queue is full until ctx is done.
func (p *Pipeline) Submit(ctx context.Context, b Batch) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.batches <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}
}

// TrySubmit queues a batch without blocking. A full queue drops the batch
// and counts it.
func (p *Pipeline) TrySubmit(b Batch) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.batches <- b:
		return nil
	default:
		n := p.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			monitoring.Logf("pipeline: queue full, dropped %d batches", n)
		}
		return ErrQueueFull
	}
}

// Configure hands new settings to the Run goroutine and waits until they
// are applied.
func (p *Pipeline) Configure(ctx context.Context, s Settings) error {
	c := control{settings: s, done: make(chan struct{})}
	select {
	case p.control <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}
}

// Settings returns the settings currently applied.
func (p *Pipeline) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Held returns the paths awaiting a stitch match.
func (p *Pipeline) Held() []stitch.Held {
	return p.stitcher.Held()
}

// AnomalyStats returns the rolling per-group statistics.
func (p *Pipeline) AnomalyStats() map[string]map[string]anomaly.Summary {
	return p.evaluator.Stats()
}

// Occupancy returns the last published stabilized occupancy.
func (p *Pipeline) Occupancy() occupancy.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastOccView
}

// Status reports queue and stage counters.
func (p *Pipeline) Status() Status {
	now := p.clock.Now()
	return Status{
		UptimeHours: math.Round(now.Sub(p.started).Hours()*100) / 100,
		QueueDepth:  len(p.batches),
		Dropped:     p.dropped.Load(),
		Tracks:      int(p.live.Load()),
		Held:        p.stitcher.Len(),
		Timestamp:   now.UnixMilli(),
	}
}

// Run consumes batches until ctx is done. On exit live tracks are
// terminated, held paths are released and queued events are delivered.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(p.closed)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		p.dispatch(context.WithoutCancel(ctx))
	}()

	ticker := p.clock.NewTicker(p.opts.Tick)
	defer ticker.Stop()

	monitoring.Logf("pipeline: running serial=%q queue=%d tick=%s", p.opts.Serial, p.opts.QueueSize, p.opts.Tick)
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			close(p.events)
			<-dispatched
			monitoring.Logf("pipeline: stopped")
			return ctx.Err()
		case b := <-p.batches:
			p.process(b)
		case c := <-p.control:
			p.apply(c.settings)
			close(c.done)
		case <-ticker.C():
			p.tick(p.now())
		}
	}
}

// now returns the scene time: the latest batch time advanced by the host
// time elapsed since that batch was processed. Deadlines run on this base,
// never on the host clock alone, since batch times come from the sensor.
func (p *Pipeline) now() time.Time {
	host := p.clock.Now()
	if p.sceneAt.IsZero() {
		return host
	}
	return p.sceneAt.Add(host.Sub(p.hostAt))
}

func (p *Pipeline) process(b Batch) {
	now := b.Time
	if now.IsZero() {
		now = p.now()
	}
	p.sceneAt, p.hostAt = now, p.clock.Now()

	dets := p.settings.Filter.Apply(b.Detections)
	if len(dets) > 0 {
		p.emit(now, KindDetections, dets)
	}
	for _, tr := range p.tracker.Update(now, dets) {
		p.handleTrack(now, tr)
	}
	p.observeOccupancy(now)
}

func (p *Pipeline) handleTrack(now time.Time, tr scene.Track) {
	terminal := !tr.Active
	if reason := p.evaluator.Evaluate(&tr, terminal); reason != "" {
		p.tracker.Annotate(tr.ID, reason)
		p.raiseAnomaly(now, tr, reason)
	}
	p.emit(now, KindTracker, tr)

	if path, ok := p.paths.Observe(tr); ok {
		for _, out := range p.stitcher.Process(now, path) {
			p.emit(now, KindPath, out)
		}
	}
}

func (p *Pipeline) raiseAnomaly(now time.Time, tr scene.Track, reason string) {
	if !p.settings.Anomaly.Enabled {
		return
	}
	if p.latch.Raise(now) {
		p.emit(now, KindAnomaly, AnomalySignal{
			Name:      AnomalySignalName,
			State:     true,
			Reason:    reason,
			TrackID:   tr.ID,
			Class:     tr.Class,
			Timestamp: now.UnixMilli(),
		})
	}
}

func (p *Pipeline) observeOccupancy(now time.Time) {
	p.live.Store(int64(p.tracker.Len()))
	if _, ok := p.occupancy.Observe(now, p.tracker.Live()); !ok {
		return
	}
	p.reportOccupancy(now)
}

// reportOccupancy publishes the stabilized view when it changed.
func (p *Pipeline) reportOccupancy(now time.Time) {
	snap, ok := p.occupancy.Report(now)
	if !ok {
		return
	}
	p.mu.Lock()
	p.lastOccView = snap
	p.mu.Unlock()
	p.emit(now, KindOccupancy, snap)
}

// tick services every deadline: stale tracks, heartbeats, stitch holds,
// the anomaly clear delay and the status report.
func (p *Pipeline) tick(now time.Time) {
	if expired := p.tracker.Expire(now); len(expired) > 0 {
		for _, tr := range expired {
			p.handleTrack(now, tr)
		}
		p.observeOccupancy(now)
	}
	// Samples leave the integration window without new snapshots.
	if p.occupancy.Len() > 1 {
		p.reportOccupancy(now)
	}

	for _, tr := range p.tracker.Heartbeat(now, p.opts.Heartbeat) {
		p.emit(now, KindTracker, tr)
	}

	for _, path := range p.stitcher.Expire(now) {
		p.emit(now, KindPath, path)
	}

	if p.latch.Expire(now) {
		p.emit(now, KindAnomaly, AnomalySignal{
			Name:      AnomalySignalName,
			State:     false,
			Timestamp: now.UnixMilli(),
		})
	}

	host := p.clock.Now()
	if p.opts.StatusInterval > 0 && host.Sub(p.lastStatus) >= p.opts.StatusInterval {
		p.lastStatus = host
		p.emit(now, KindStatus, p.Status())
	}
}

func (p *Pipeline) apply(s Settings) {
	p.settings = s
	p.tracker.Configure(s.Tracker)
	p.evaluator.Configure(s.Anomaly)
	p.latch.SetClearAfter(s.Anomaly.ClearDelay())
	p.occupancy.Configure(s.Occupancy)

	now := p.now()
	for _, path := range p.stitcher.Configure(s.Stitch) {
		p.emit(now, KindPath, path)
	}

	p.mu.Lock()
	p.view = s
	p.mu.Unlock()
	monitoring.Logf("pipeline: settings applied")
}

func (p *Pipeline) shutdown() {
	now := p.now()
	for _, tr := range p.tracker.Flush() {
		p.handleTrack(now, tr)
	}
	for _, path := range p.stitcher.Flush() {
		p.emit(now, KindPath, path)
	}
	p.live.Store(0)
}

func (p *Pipeline) emit(now time.Time, kind Kind, payload any) {
	if !p.settings.Publish.Enabled(kind) {
		return
	}
	p.events <- Event{
		Kind:    kind,
		Topic:   string(kind) + "/" + p.opts.Serial,
		Time:    now,
		Payload: payload,
	}
}

// dispatch delivers events to every publisher in order until the event
// queue is closed.
func (p *Pipeline) dispatch(ctx context.Context) {
	for ev := range p.events {
		for _, pub := range p.publishers {
			if err := pub.Publish(ctx, ev); err != nil {
				monitoring.Logf("pipeline: publish %s failed: %v", ev.Topic, err)
			}
		}
	}
}
