package checkpointer

import (
	"fmt"
	"time"
)

// FileTimer returns a naming function that stamps each checkpoint file
// with the current Unix time in nanoseconds, so successive checkpoints
// never collide: filename-<nanos><extension>
func FileTimer(filename, extension string) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, time.Now().UnixNano(),
			extension)
	}
}
