package relay

import (
	"os"
	"strconv"
)

// WritePidFile writes the current process id (without a trailing newline)
// to path, returning a function that removes it.
func WritePidFile(path string) (remove func(), err error) {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(path) }, nil
}
