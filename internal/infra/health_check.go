package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	checkExecInterval = 5 * time.Second
)

// MonitorExecutable signals once the running binary has been replaced on disk,
// so a supervisor can restart the service with the new rules.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	return monitorFile(ctx, "", checkExecInterval)
}

// monitorFile takes the baseline modification time before returning.
func monitorFile(ctx context.Context, filename string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	entry := log.WithField("context", "exec_monitor")

	if filename == "" {
		exe, err := os.Executable()
		if err != nil {
			entry.WithError(err).Warn("cant resolve executable path for monitor")
			close(ch)
			return ch
		}
		filename = exe
	}
	stat, err := os.Stat(filename)
	if err != nil {
		entry.WithError(err).Warn("cant stat file for monitor")
		close(ch)
		return ch
	}
	originalTime := stat.ModTime()

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(filename)
				if err != nil {
					entry.WithError(err).Warn("cant stat file for monitor tick")
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					select {
					case ch <- struct{}{}:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()
	return ch
}
