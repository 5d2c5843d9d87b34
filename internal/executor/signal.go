package executor

import (
	"os"
	"syscall"
)

// interruptSignal returns the signal used for graceful worker shutdown.
func interruptSignal() os.Signal {
	return syscall.SIGTERM
}
