//go:build linux

package watcher

import "golang.org/x/sys/unix"

func threadID() int { return unix.Gettid() }

// setThreadPriority sets the nice value of one thread. Raising it needs
// CAP_SYS_NICE.
func setThreadPriority(tid, nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, tid, nice)
}
