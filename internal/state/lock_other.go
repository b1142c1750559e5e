//go:build !unix

package state

import "os"

// Advisory locking is not available here; the in-process mutex still
// serializes writers within one process.

func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
