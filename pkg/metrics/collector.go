// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector periodically samples process gauges and uptime.
type ResourceCollector struct {
	interval time.Duration
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartResourceCollector samples every interval until ctx is cancelled or
// Stop is called.
func StartResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	ctx, cancel := context.WithCancel(ctx)
	rc := &ResourceCollector{
		interval: interval,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go rc.run(ctx)
	return rc
}

func (rc *ResourceCollector) run(ctx context.Context) {
	defer close(rc.done)
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts collection and waits for the sampler to exit.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
	<-rc.done
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	MemoryAllocBytes.Set(float64(ms.Alloc))

	ServerUptime.Set(time.Since(rc.started).Seconds())
}
