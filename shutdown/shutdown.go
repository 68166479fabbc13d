// Package shutdown runs prioritized cleanup hooks when the process is asked to stop.
package shutdown

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/flanksource/commons/logger"
)

// Hooks with lower priorities run first: stop accepting requests, then drain
// renders, then close storage.
const (
	PriorityIngress  = 0
	PriorityDefault  = 100
	PriorityWorkers  = 200
	PriorityDatabase = 300
)

type hook struct {
	label    string
	priority int
	seq      int
	fn       func()
	index    int
}

type hookHeap []*hook

func (h hookHeap) Len() int { return len(h) }
func (h hookHeap) Less(i, j int) bool {
	if h[i].priority == h[j].priority {
		return h[i].seq < h[j].seq
	}
	return h[i].priority < h[j].priority
}
func (h hookHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *hookHeap) Push(x any) {
	item := x.(*hook)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *hookHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Hooks is an ordered set of shutdown hooks, each run at most once.
type Hooks struct {
	mu    sync.Mutex
	hooks hookHeap
	seq   int
	log   logger.Logger
}

// New returns an empty hook set.
func New() *Hooks {
	return &Hooks{log: logger.GetLogger("shutdown")}
}

// Add registers fn at PriorityDefault.
func (h *Hooks) Add(label string, fn func()) {
	h.AddWithPriority(label, PriorityDefault, fn)
}

// AddWithPriority registers fn; hooks of equal priority run in registration order.
func (h *Hooks) AddWithPriority(label string, priority int, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	heap.Push(&h.hooks, &hook{label: label, priority: priority, seq: h.seq, fn: fn})
}

// Len is the number of hooks not yet run.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hooks.Len()
}

// Run executes and removes every registered hook. A panicking hook is logged and
// does not stop the others.
func (h *Hooks) Run() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks.Len() == 0 {
		return
	}

	h.log.Infof("Executing %d shutdown hooks", h.hooks.Len())
	for h.hooks.Len() > 0 {
		next := heap.Pop(&h.hooks).(*hook)
		h.log.Debugf("Executing shutdown hook: %s (priority=%d)", next.label, next.priority)
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Errorf("Panic in shutdown hook %s: %v", next.label, r)
				}
			}()
			next.fn()
		}()
	}
}

// Wait blocks until SIGINT/SIGTERM or ctx is done, then runs the hooks. A second
// signal while the hooks run exits the process immediately.
func (h *Hooks) Wait(ctx context.Context) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down (press Ctrl+C again to force exit)\n", sig)
		go func() {
			<-signals
			fmt.Fprintln(os.Stderr, "Force exit")
			os.Exit(1)
		}()
	case <-ctx.Done():
	}
	h.Run()
}

var global = New()

// AddHookWithPriority registers a prioritized hook on the process wide hook set.
func AddHookWithPriority(label string, priority int, fn func()) {
	global.AddWithPriority(label, priority, fn)
}

// WaitForSignal blocks until the process is signalled or ctx is done, then runs the process wide hooks.
func WaitForSignal(ctx context.Context) {
	global.Wait(ctx)
}
