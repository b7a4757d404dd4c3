//go:build windows

package cli

import (
	"os"
	"time"

	"golang.org/x/term"
)

// watchResize polls for terminal size changes; Windows has no SIGWINCH.
func watchResize(fn func()) (stop func()) {
	done := make(chan struct{})

	go func() {
		fd := int(os.Stdin.Fd())
		lastCols, lastRows, _ := term.GetSize(fd)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cols, rows, err := term.GetSize(fd)
				if err != nil {
					continue
				}
				if cols != lastCols || rows != lastRows {
					lastCols, lastRows = cols, rows
					fn()
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
