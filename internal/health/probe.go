package health

import (
	"context"
	"sync"
	"time"
)

type Check func(ctx context.Context) error

type Result struct {
	Name       string `json:"name"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type ProbeRunner struct {
	timeout time.Duration
	names   []string
	checks  map[string]Check
}

func NewProbeRunner(timeout time.Duration) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, checks: make(map[string]Check)}
}

func (p *ProbeRunner) Register(name string, check Check) {
	if _, exists := p.checks[name]; !exists {
		p.names = append(p.names, name)
	}
	p.checks[name] = check
}

// Ready runs every check concurrently under a shared deadline. Results keep
// registration order.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]Result, len(p.names))
	var wg sync.WaitGroup
	for i, name := range p.names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			start := time.Now()
			err := p.checks[name](ctx)
			results[i] = Result{Name: name, Healthy: err == nil, DurationMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, name)
	}
	wg.Wait()

	ready := true
	for _, r := range results {
		ready = ready && r.Healthy
	}
	return ready, results
}
