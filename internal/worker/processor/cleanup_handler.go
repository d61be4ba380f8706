package processor

import (
	"path/filepath"
	"strings"

	"mediarelay/internal/delivery"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
)

type Cleanup struct {
	dir *scratch.Dir
	log *logger.Logger
}

func NewCleanup(dir *scratch.Dir, log *logger.Logger) *Cleanup {
	return &Cleanup{dir: dir, log: log}
}

// Request removes scratch files still owned by requestID. Strategies clean up
// after themselves; anything found here was left by an aborted transfer.
func (c *Cleanup) Request(requestID string) int {
	if c.dir == nil || requestID == "" {
		return 0
	}

	names, err := c.dir.List()
	if err != nil {
		c.log.Warn("scratch listing failed", "error", err.Error())
		return 0
	}

	prefix := delivery.TempPrefix(requestID)
	removed := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := c.dir.Remove(filepath.Join(c.dir.Root(), name)); err != nil {
			c.log.Warn("scratch cleanup failed", "file", name, "error", err.Error())
			continue
		}
		removed++
	}
	if removed > 0 {
		c.log.Warn("removed leftover scratch files", "fetch_id", requestID, "count", removed)
	}
	return removed
}
