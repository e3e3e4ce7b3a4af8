// Package cleaner removes aged files from the downloads directory and the
// session file cache on a schedule.
package cleaner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleaner periodically deletes files older than the age threshold from a
// set of directories. Directories that do not exist yet are skipped and
// rechecked on the next cycle.
type Cleaner struct {
	dirs         []string
	interval     time.Duration
	ageThreshold time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a cleaner over the given directories.
func New(dirs []string, interval, ageThreshold time.Duration) *Cleaner {
	return &Cleaner{
		dirs:         dirs,
		interval:     interval,
		ageThreshold: ageThreshold,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the cleaning goroutine. The first sweep runs immediately.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cleaner is already running")
	}
	c.running = true
	c.wg.Add(1)
	go c.loop()

	log.Info().
		Strs("dirs", c.dirs).
		Float64("age_threshold_minutes", c.ageThreshold.Minutes()).
		Float64("interval_minutes", c.interval.Minutes()).
		Msg("File cleaner started")
	return nil
}

// Stop terminates the cleaning goroutine and waits for it to finish.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	close(c.stopChan)
	c.wg.Wait()
	c.running = false
	log.Info().Msg("File cleaner stopped")
}

func (c *Cleaner) loop() {
	defer c.wg.Done()

	c.Sweep()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopChan:
			return
		}
	}
}

// Sweep removes files older than the threshold from every configured
// directory and returns how many were deleted.
func (c *Cleaner) Sweep() int {
	cutoff := time.Now().Add(-c.ageThreshold)
	var total int

	for _, dir := range c.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Debug().Str("dir", dir).Msg("Directory does not exist yet, skipping")
			continue
		}
		total += c.sweepDir(dir, cutoff)
	}

	if total > 0 {
		log.Info().Int("files_removed", total).
			Float64("age_threshold_minutes", c.ageThreshold.Minutes()).
			Msg("Completed file cleanup")
	} else {
		log.Debug().Msg("No files needed cleaning")
	}
	return total
}

func (c *Cleaner) sweepDir(dir string, cutoff time.Time) int {
	var count int

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Error accessing path")
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Error getting file info")
			return nil
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to remove file")
				return nil
			}
			log.Debug().Str("path", path).
				Float64("age_minutes", time.Since(info.ModTime()).Minutes()).
				Msg("Removed old file")
			count++
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Error walking directory")
	}

	return count
}
