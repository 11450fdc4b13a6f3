// monitor/rest.go
package monitor

import (
	"context"
	"time"

	"apex_hunter_go/logs"
)

// CycleFunc runs one trade cycle.
type CycleFunc func(ctx context.Context) error

// Run calls cycle immediately and then every interval until ctx is cancelled.
// A failing cycle is logged and the loop keeps going.
func Run(ctx context.Context, interval, heartbeat time.Duration, cycle CycleFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	cycles := 0

	runOnce := func() {
		cycles++
		if err := cycle(ctx); err != nil && ctx.Err() == nil {
			logs.Errorf("[Monitor] Cycle %d failed: %v", cycles, err)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			logs.Infof("Monitor received stop signal after %d cycles, exiting.", cycles)
			return
		case <-ticker.C:
			runOnce()
			if heartbeat > 0 && time.Since(lastHeartbeat) >= heartbeat {
				logs.Infof("[Heartbeat] Engine still running, %d cycles completed", cycles)
				lastHeartbeat = time.Now()
			}
		}
	}
}
