package checkpointer

import "fmt"

// FilenameEnumerator returns a naming function producing filenames
// with an increasing integer suffix: filename<start+1><extension>,
// filename<start+2><extension>, and so on, one per call. Checkpoints
// named this way sort in the order they were written.
func FilenameEnumerator(start int, filename, extension string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v%v%v", filename, i, extension)
	}
}
