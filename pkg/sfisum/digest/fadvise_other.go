//go:build !linux

package digest

import "os"

func adviseSequential(*os.File) {}
