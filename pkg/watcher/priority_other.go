//go:build !linux

package watcher

func threadID() int { return 0 }

func setThreadPriority(int, int) error { return nil }
