package runner

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// watchdog reports tests that have been running longer than a threshold.
type watchdog struct {
	threshold time.Duration
	report    func(msg string)
	now       func() time.Time

	mu     sync.Mutex
	active map[*model.Test]time.Time
}

func newWatchdog(threshold time.Duration, report func(msg string)) *watchdog {
	return &watchdog{
		threshold: threshold,
		report:    report,
		now:       time.Now,
		active:    make(map[*model.Test]time.Time),
	}
}

// start checks once per threshold until the returned stop func is called.
// stop waits for an in-progress check to finish.
func (w *watchdog) start() (stop func()) {
	ticker := time.NewTicker(w.threshold)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ticker.C:
				w.check()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
		wg.Wait()
	}
}

func (w *watchdog) begin(t *model.Test) {
	w.mu.Lock()
	w.active[t] = w.now()
	w.mu.Unlock()
}

func (w *watchdog) end(t *model.Test) {
	w.mu.Lock()
	delete(w.active, t)
	w.mu.Unlock()
}

type longRunner struct {
	name    string
	elapsed time.Duration
}

func (w *watchdog) check() {
	now := w.now()

	w.mu.Lock()
	var slow []longRunner
	for t, started := range w.active {
		if elapsed := now.Sub(started); elapsed >= w.threshold {
			slow = append(slow, longRunner{name: t.DisplayName, elapsed: elapsed})
		}
	}
	w.mu.Unlock()

	sort.Slice(slow, func(i, j int) bool { return slow[i].elapsed > slow[j].elapsed })
	for _, s := range slow {
		w.report(fmt.Sprintf("[Long Running Test] '%s', Elapsed: %s", s.name, formatElapsed(s.elapsed)))
	}
}

// formatElapsed renders d as hh:mm:ss.
func formatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
