// Package reliability tracks per-tool call outcomes and turns them into
// a decayed failure score used to demote flaky tools in search rankings.
package reliability

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/toolrack/toolrack/internal/logger"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is a single recorded call outcome.
type Event struct {
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
}

// Params tunes how failure scores are computed. DecayBase is raised to the
// age of the most recent failure measured in DecayUnit steps; MaxRecent caps
// how many outcomes per tool are kept, so sustained successes push old
// failures out of the window entirely.
type Params struct {
	DecayBase float64
	DecayUnit time.Duration
	MaxRecent int
}

func DefaultParams() Params {
	return Params{
		DecayBase: 0.9,
		DecayUnit: time.Second,
		MaxRecent: 20,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.DecayBase <= 0 || p.DecayBase > 1 {
		p.DecayBase = d.DecayBase
	}
	if p.DecayUnit <= 0 {
		p.DecayUnit = d.DecayUnit
	}
	if p.MaxRecent <= 0 {
		p.MaxRecent = d.MaxRecent
	}
	return p
}

type toolRecord struct {
	recent []Event
}

const eventBuffer = 256

// Log keeps a bounded per-tool history of outcomes in memory and, when a
// Store is attached, appends every event to it from a background goroutine
// so recording never blocks on I/O.
type Log struct {
	mu      sync.RWMutex
	params  Params
	records map[string]*toolRecord

	store     Store
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	log *slog.Logger
}

// NewLog builds a log with the given params, replaying any history found in
// store. A nil store keeps everything in memory. Load failures are logged
// and the log starts empty rather than failing construction.
func NewLog(params Params, store Store) *Log {
	l := &Log{
		params:  params.withDefaults(),
		records: make(map[string]*toolRecord),
		store:   store,
		log:     logger.ForComponent("reliability"),
	}

	if store != nil {
		events, err := store.Load()
		if err != nil {
			l.log.Warn("failed to load reliability history, starting empty", "error", err)
		}
		for _, ev := range events {
			l.apply(ev)
		}

		l.events = make(chan Event, eventBuffer)
		l.done = make(chan struct{})
		l.wg.Add(1)
		go l.drain()
	}

	return l
}

// Record appends one outcome for tool. Safe for concurrent use.
func (l *Log) Record(tool string, outcome Outcome, at time.Time) {
	if tool == "" {
		return
	}
	ev := Event{Tool: tool, Timestamp: at.UTC(), Outcome: outcome}

	l.mu.Lock()
	l.apply(ev)
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.log.Warn("reliability event dropped, persistence queue full", "tool", tool)
	}
}

// FailureScore returns the decayed failure count for tool as of now. Tools
// with no failures in the retained window score zero.
func (l *Log) FailureScore(tool string, now time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := l.records[tool]
	if rec == nil {
		return 0
	}

	failures := 0
	var last time.Time
	for _, ev := range rec.recent {
		if ev.Outcome != OutcomeFailure {
			continue
		}
		failures++
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	if failures == 0 {
		return 0
	}

	age := now.Sub(last)
	if age < 0 {
		age = 0
	}
	steps := float64(age) / float64(l.params.DecayUnit)
	return float64(failures) * math.Pow(l.params.DecayBase, steps)
}

// Params returns the current scoring parameters.
func (l *Log) Params() Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// SetParams swaps the scoring parameters, trimming retained histories if the
// window shrank.
func (l *Log) SetParams(p Params) {
	p = p.withDefaults()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = p
	for _, rec := range l.records {
		if n := len(rec.recent) - p.MaxRecent; n > 0 {
			rec.recent = append(rec.recent[:0], rec.recent[n:]...)
		}
	}
}

// Reset wipes all in-memory history and truncates the store. Events recorded
// concurrently with Reset may still reach the store.
func (l *Log) Reset() {
	l.mu.Lock()
	l.records = make(map[string]*toolRecord)
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.Replace(nil); err != nil {
		l.log.Error("failed to truncate reliability store", "error", err)
	}
}

// Close flushes queued events and closes the store. Record calls made after
// Close are kept in memory only.
func (l *Log) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.store == nil {
			return
		}
		close(l.done)
		l.wg.Wait()
		err = l.store.Close()
	})
	return err
}

// apply folds one event into the per-tool window. Caller holds l.mu.
func (l *Log) apply(ev Event) {
	rec := l.records[ev.Tool]
	if rec == nil {
		rec = &toolRecord{}
		l.records[ev.Tool] = rec
	}
	rec.recent = append(rec.recent, ev)
	if n := len(rec.recent) - l.params.MaxRecent; n > 0 {
		rec.recent = append(rec.recent[:0], rec.recent[n:]...)
	}
}

func (l *Log) drain() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.events:
			l.persist(ev)
		case <-l.done:
			for {
				select {
				case ev := <-l.events:
					l.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) persist(ev Event) {
	if err := l.store.Append(ev); err != nil {
		l.log.Error("failed to persist reliability event", "tool", ev.Tool, "error", err)
	}
}
