// Package preflight validates a backup destination before any data is
// moved. Destinations are often network shares or removable media, so a
// cheap writability and free-space probe up front beats failing halfway
// through a run.
package preflight

import (
	"fmt"
	"os"

	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/util"
)

// CheckDestination ensures the destination root exists, is writable, and has
// at least needBytes of free space. The free-space probe is best effort; an
// unsupported filesystem only logs a debug line.
func CheckDestination(path string, needBytes int64) error {
	if err := os.MkdirAll(path, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create destination root %s: %w", path, err)
	}

	probe, err := os.CreateTemp(path, ".foldback-write-check-*")
	if err != nil {
		return fmt.Errorf("destination %s is not writable: %w", path, err)
	}
	probeName := probe.Name()
	probe.Close()
	os.Remove(probeName)

	avail, err := availableBytes(path)
	if err != nil {
		plog.Debug("Free space probe unsupported on destination", "path", path, "error", err)
		return nil
	}
	if needBytes > 0 && avail < needBytes {
		return fmt.Errorf("destination %s has %s free but the backup needs %s",
			path, util.FormatBytes(avail), util.FormatBytes(needBytes))
	}
	return nil
}
