package runloop

import (
	"fmt"
	"math"

	"github.com/e7canasta/framebench/modules/metrics"
)

// Label formats the display text for one snapshot. The worker rate is
// omitted when nothing is decoded on the processing side.
func Label(s metrics.Snapshot, noop bool) string {
	overall := fmt.Sprintf("Overall: %d FPS", int(math.Floor(s.FPS)))
	if noop {
		return overall
	}
	return fmt.Sprintf("%s | Worker: %d FPS", overall, int(math.Floor(s.ProcessingFPS)))
}
