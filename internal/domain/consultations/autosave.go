package consultations

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
)

// SaveState is the UI-facing status of a draft's autosave cycle.
type SaveState string

const (
	SaveStateSaving SaveState = "saving"
	SaveStateSaved  SaveState = "saved"
	SaveStateError  SaveState = "error"
)

// SaveEvent is emitted on every autosave attempt so clients can show a
// save indicator.
type SaveEvent struct {
	DraftID uuid.UUID `json:"draft_id"`
	State   SaveState `json:"state"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// Autosaver runs one worker goroutine per tracked draft. Each worker
// accumulates field changes and persists them on a fixed interval, so a
// burst of edits costs one write. Transient failures are retried with a
// growing delay before an error event is emitted.
type Autosaver struct {
	svc        *Service
	interval   time.Duration
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	workers map[uuid.UUID]*draftWorker
	last    map[uuid.UUID]SaveEvent
	events  chan SaveEvent
	closed  bool
}

type draftWorker struct {
	draftID uuid.UUID
	changes chan map[string]string
	flush   chan chan error
	stop    chan struct{}
	done    chan struct{}
}

func NewAutosaver(svc *Service, interval time.Duration, maxRetries int, log zerolog.Logger) *Autosaver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Autosaver{
		svc:        svc,
		interval:   interval,
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		log:        log.With().Str("component", "autosave").Logger(),
		workers:    make(map[uuid.UUID]*draftWorker),
		last:       make(map[uuid.UUID]SaveEvent),
		events:     make(chan SaveEvent, 64),
	}
}

// Events exposes the save-status stream. Slow consumers drop events rather
// than stalling workers; LastEvent always has the latest state.
func (a *Autosaver) Events() <-chan SaveEvent {
	return a.events
}

// LastEvent returns the most recent save event for a draft.
func (a *Autosaver) LastEvent(draftID uuid.UUID) (SaveEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ev, ok := a.last[draftID]
	return ev, ok
}

// Track starts the worker for a draft if it is not already running.
func (a *Autosaver) Track(draftID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if _, ok := a.workers[draftID]; ok {
		return
	}
	w := &draftWorker{
		draftID: draftID,
		changes: make(chan map[string]string, 16),
		flush:   make(chan chan error),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	a.workers[draftID] = w
	go a.run(w)
}

// QueueChange hands field edits to the draft's worker, starting one if
// needed. The write happens on the next autosave tick.
func (a *Autosaver) QueueChange(draftID uuid.UUID, fields map[string]string) {
	a.Track(draftID)
	a.mu.Lock()
	w, ok := a.workers[draftID]
	a.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.changes <- fields:
	case <-w.done:
	}
}

// Flush synchronously persists any pending changes for a draft.
func (a *Autosaver) Flush(draftID uuid.UUID) error {
	a.mu.Lock()
	w, ok := a.workers[draftID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	reply := make(chan error, 1)
	select {
	case w.flush <- reply:
		return <-reply
	case <-w.done:
		return nil
	}
}

// Untrack flushes and stops the worker for a draft, typically after
// finalize.
func (a *Autosaver) Untrack(draftID uuid.UUID) {
	a.mu.Lock()
	w, ok := a.workers[draftID]
	if ok {
		delete(a.workers, draftID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	close(w.stop)
	<-w.done
}

// Close stops every worker, flushing pending changes first.
func (a *Autosaver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	workers := make([]*draftWorker, 0, len(a.workers))
	for _, w := range a.workers {
		workers = append(workers, w)
	}
	a.workers = make(map[uuid.UUID]*draftWorker)
	a.mu.Unlock()

	for _, w := range workers {
		close(w.stop)
		<-w.done
	}
}

func (a *Autosaver) run(w *draftWorker) {
	defer close(w.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	pending := make(map[string]string)
	merge := func(fields map[string]string) {
		for k, v := range fields {
			pending[k] = v
		}
	}
	drain := func() {
		for {
			select {
			case fields := <-w.changes:
				merge(fields)
			default:
				return
			}
		}
	}
	save := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := a.save(w.draftID, pending)
		if err == nil {
			pending = make(map[string]string)
		}
		return err
	}

	for {
		select {
		case fields := <-w.changes:
			merge(fields)
		case <-ticker.C:
			drain()
			if err := save(); err != nil {
				a.log.Warn().Err(err).Str("draft_id", w.draftID.String()).Msg("autosave failed")
			}
		case reply := <-w.flush:
			drain()
			reply <- save()
		case <-w.stop:
			drain()
			if err := save(); err != nil {
				a.log.Error().Err(err).Str("draft_id", w.draftID.String()).Msg("final autosave flush failed")
			}
			return
		}
	}
}

// save persists one batch with bounded retries. Finalized drafts stop the
// retry loop immediately: their pending edits can never land.
func (a *Autosaver) save(draftID uuid.UUID, fields map[string]string) error {
	a.emit(SaveEvent{DraftID: draftID, State: SaveStateSaving, At: time.Now()})

	var err error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		_, err = a.svc.Save(context.Background(), draftID, cloneFields(fields))
		if err == nil {
			a.emit(SaveEvent{DraftID: draftID, State: SaveStateSaved, At: time.Now()})
			return nil
		}
		var finalized *apperr.AlreadyFinalizedError
		if errors.As(err, &finalized) {
			break
		}
		if attempt < a.maxRetries {
			time.Sleep(time.Duration(attempt) * a.retryDelay)
		}
	}
	a.emit(SaveEvent{DraftID: draftID, State: SaveStateError, At: time.Now(), Error: err.Error()})
	return err
}

func (a *Autosaver) emit(ev SaveEvent) {
	a.mu.Lock()
	a.last[ev.DraftID] = ev
	a.mu.Unlock()
	select {
	case a.events <- ev:
	default:
	}
}

func cloneFields(fields map[string]string) map[string]string {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp
}
