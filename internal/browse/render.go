package browse

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
)

// DefaultBatchSize is the number of events rendered per frame.
const DefaultBatchSize = 5

// Container receives rendered events.
type Container interface {
	Clear()
	Append(batch []models.Event)
}

// Renderer spreads a render pass over several frames. A new Render call
// supersedes any pass still in flight: the container is cleared and the old
// queue is dropped before a single stale batch can land.
type Renderer struct {
	mu         sync.Mutex
	container  Container
	batch      int
	queue      []models.Event
	generation uint64
}

func NewRenderer(container Container, batch int) *Renderer {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Renderer{container: container, batch: batch}
}

// Render starts a new pass over items and returns its generation.
func (r *Renderer) Render(items []models.Event) uint64 {
	queue := make([]models.Event, len(items))
	copy(queue, items)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.queue = queue
	r.container.Clear()
	return r.generation
}

// Step renders one batch and reports whether more are pending.
func (r *Renderer) Step() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return false
	}
	n := min(r.batch, len(r.queue))
	batch := r.queue[:n:n]
	r.queue = r.queue[n:]
	r.container.Append(batch)
	return len(r.queue) > 0
}

// Flush renders everything still queued.
func (r *Renderer) Flush() {
	for r.Step() {
	}
}

// Pending is the number of queued events.
func (r *Renderer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Generation identifies the current pass.
func (r *Renderer) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Run renders one batch per frame until ctx is done or frames is closed.
func (r *Renderer) Run(ctx context.Context, frames <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-frames:
			if !ok {
				return nil
			}
			r.Step()
		}
	}
}

// Controller applies state mutations and re-renders atomically, so a render
// pass always reflects one consistent filter and page.
type Controller struct {
	mu       sync.Mutex
	state    *State
	events   []models.Event
	renderer *Renderer
}

func NewController(state *State, events []models.Event, renderer *Renderer) *Controller {
	return &Controller{state: state, events: events, renderer: renderer}
}

// Update mutates the state, takes a snapshot and starts a render pass.
func (c *Controller) Update(fn func(*State)) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn != nil {
		fn(c.state)
	}
	view := c.state.Snapshot(c.events)
	c.renderer.Render(view.Items)
	return view
}

// Counts returns category counts over the unfiltered events.
func (c *Controller) Counts() map[Category]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Counts(c.events)
}

// TextContainer writes events as plain lines, for the command line.
type TextContainer struct {
	w        io.Writer
	calendar normalize.Calendar
}

func NewTextContainer(w io.Writer, cal normalize.Calendar) *TextContainer {
	return &TextContainer{w: w, calendar: cal}
}

func (t *TextContainer) Clear() {
	fmt.Fprintln(t.w, "----")
}

func (t *TextContainer) Append(batch []models.Event) {
	for _, ev := range batch {
		fmt.Fprintf(t.w, "%-9s %-16s %-18s %s\n", t.calendar.Label(ev.Day), ev.Time, ev.ID, ev.Title)
	}
}

// Buffer is an in-memory container that records every batch.
type Buffer struct {
	mu      sync.Mutex
	Items   []models.Event
	Batches []int
	Clears  int
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Items = nil
	b.Batches = nil
	b.Clears++
}

func (b *Buffer) Append(batch []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Items = append(b.Items, batch...)
	b.Batches = append(b.Batches, len(batch))
}
