// Package ui renders live sampling progress to the terminal. The
// display polls the session for snapshots on a ticker and redraws a
// strata table in place; log output goes to stderr so the two never
// interleave.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ghsampler/pkg/sampler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	statusStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("86"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true)
)

// SnapshotProvider supplies the state the display renders.
type SnapshotProvider interface {
	Snapshot() sampler.Snapshot
}

// Display periodically rewrites a progress table on the terminal.
type Display struct {
	provider SnapshotProvider
	out      io.Writer
	interval time.Duration

	mu        sync.Mutex
	lastLines int
	stop      chan struct{}
	done      chan struct{}
}

// NewDisplay creates a display writing to stdout once a second.
func NewDisplay(provider SnapshotProvider) *Display {
	return &Display{
		provider: provider,
		out:      os.Stdout,
		interval: time.Second,
	}
}

// Start begins redrawing until Stop is called.
func (d *Display) Start() {
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.render()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.render()
			}
		}
	}()
}

// Stop halts the ticker and draws one final frame.
func (d *Display) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
	d.render()
}

func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame := renderFrame(d.provider.Snapshot())
	lines := strings.Count(frame, "\n")

	if d.lastLines > 0 {
		// Move to the top of the previous frame and clear it.
		fmt.Fprintf(d.out, "\033[%dF\033[J", d.lastLines)
	}
	fmt.Fprint(d.out, frame)
	d.lastLines = lines
}

func renderFrame(snap sampler.Snapshot) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Sampling file sizes %d..%d bytes", snap.MinSize, snap.MaxSize)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-18s %12s %10s %10s", "Stratum", "Population", "Sample", "Coverage")))
	b.WriteString("\n")

	for _, c := range snap.Completed {
		b.WriteString(doneStyle.Render(row(c.Stratum.String(), c.Population, c.Sampled)))
		b.WriteString("\n")
	}

	if snap.Stratum.Last > 0 {
		b.WriteString(currentStyle.Render(row(snap.Stratum.String(), snap.Population, snap.Sampled)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(fmt.Sprintf("Sampled %s of an estimated %s results",
		count(snap.TotalSampled), count(snap.EstimatedPopulation))))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(snap.Status))
	b.WriteString("\n")

	return b.String()
}

func row(bounds string, population, sampled int) string {
	return fmt.Sprintf("%-18s %12s %10s %10s",
		bounds, count(population), count(sampled), coverage(population, sampled))
}

// count renders a possibly-unmeasured counter.
func count(n int) string {
	if n == sampler.Unknown {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

// coverage renders sampled/population as a percentage. Sampling the
// same identity through both sort orders can push it past 100%.
func coverage(population, sampled int) string {
	if population == sampler.Unknown || sampled == sampler.Unknown {
		return "?"
	}
	if population == 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(sampled)/float64(population)*100)
}
