package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	CyclesPerSec  float64
	FieldsPerSec  float64
	QuietFraction float64
	DroppedCount  int64
	Timestamp     time.Time
}

// CycleStats tracks conditioning-cycle statistics with thread-safe operations
type CycleStats struct {
	mu             sync.Mutex
	cycleCount     int64
	fieldCount     int64
	quietCount     int64
	droppedCount   int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewCycleStats creates a new CycleStats instance
func NewCycleStats() *CycleStats {
	now := time.Now()
	return &CycleStats{
		lastReset: now,
		startTime: now,
	}
}

// AddCycle increments the cycle count
func (cs *CycleStats) AddCycle() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cycleCount++
}

// AddField increments the emitted field count; quiet marks blanked cycles
func (cs *CycleStats) AddField(quiet bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.fieldCount++
	if quiet {
		cs.quietCount++
	}
}

// AddDropped increments the dropped frame count
func (cs *CycleStats) AddDropped() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.droppedCount++
}

// GetAndReset returns current stats and resets counters
func (cs *CycleStats) GetAndReset() (cycles int64, fields int64, quiet int64, dropped int64, duration time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now()
	duration = now.Sub(cs.lastReset)
	cycles = cs.cycleCount
	fields = cs.fieldCount
	quiet = cs.quietCount
	dropped = cs.droppedCount

	cs.cycleCount = 0
	cs.fieldCount = 0
	cs.quietCount = 0
	cs.droppedCount = 0
	cs.lastReset = now

	return
}

// LogStats logs formatted statistics and stores a snapshot for the web
// interface
func (cs *CycleStats) LogStats() {
	cycles, fields, quiet, dropped, duration := cs.GetAndReset()
	if cycles > 0 || dropped > 0 {
		cyclesPerSec := float64(cycles) / duration.Seconds()
		fieldsPerSec := float64(fields) / duration.Seconds()
		quietFraction := 0.0
		if fields > 0 {
			quietFraction = float64(quiet) / float64(fields)
		}

		cs.mu.Lock()
		cs.latestSnapshot = &StatsSnapshot{
			CyclesPerSec:  cyclesPerSec,
			FieldsPerSec:  fieldsPerSec,
			QuietFraction: quietFraction,
			DroppedCount:  dropped,
			Timestamp:     time.Now(),
		}
		cs.mu.Unlock()

		logMsg := fmt.Sprintf("Skin stats (/sec): %.1f cycles, %.1f fields, %.0f%% quiet",
			cyclesPerSec, fieldsPerSec, quietFraction*100)
		if dropped > 0 {
			logMsg += fmt.Sprintf(", %d dropped", dropped)
		}
		log.Print(logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (cs *CycleStats) GetUptime() time.Duration {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return time.Since(cs.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for the web
// interface
func (cs *CycleStats) GetLatestSnapshot() *StatsSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *cs.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
