//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package vmem_go

import "os"

// Without flock the in-process mutex of Ring is the only exclusion.
func lockFile(file *os.File) error { return nil }

func unlockFile(file *os.File) error { return nil }
