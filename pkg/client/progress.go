package client

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// progressBar renders a terminal progress bar for an upload or
// download in flight, grounded on pkg/util/progress.go's ProgressBar
// (trimmed to the calls Upload/Download/BulkUpload actually drive:
// add and finish, no SetCurrent/SetTotal/SetDescription).
type progressBar struct {
	mu       sync.Mutex
	total    int64
	current  int64
	start    time.Time
	prefix   string
	width    int
	writer   io.Writer
	lastDraw time.Time
}

func newProgressBar(total int64, prefix string) *progressBar {
	return &progressBar{
		total:  total,
		prefix: prefix,
		width:  30,
		writer: os.Stderr,
		start:  time.Now(),
	}
}

// add reports n more bytes transferred, redrawing at most every 100ms.
func (p *progressBar) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
	if p.current > p.total {
		p.current = p.total
	}
	if time.Since(p.lastDraw) < 100*time.Millisecond && p.current < p.total {
		return
	}
	p.draw()
	p.lastDraw = time.Now()
}

// finish draws the bar at 100% and moves to a fresh line.
func (p *progressBar) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.draw()
	fmt.Fprintln(p.writer)
}

func (p *progressBar) draw() {
	if p.total <= 0 {
		return
	}
	percent := float64(p.current) / float64(p.total) * 100
	filled := int(float64(p.width) * float64(p.current) / float64(p.total))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)

	elapsed := time.Since(p.start)
	speed := ""
	if elapsed > 0 && p.current > 0 {
		bytesPerSec := float64(p.current) / elapsed.Seconds()
		speed = fmt.Sprintf(" %s/s", formatBytes(int64(bytesPerSec)))
	}

	fmt.Fprintf(p.writer, "\r%s [%s] %5.1f%% %s/%s%s",
		p.prefix, bar, percent, formatBytes(p.current), formatBytes(p.total), speed)
}

// formatBytes converts a byte count to a human-readable string,
// grounded on pkg/util/size.go's FormatSize.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
