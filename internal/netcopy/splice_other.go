//go:build !linux

package netcopy

import (
	"fmt"
	"os"
)

const spliceAvailable = false

func spliceFile(src *os.File, dst rawConn, n int64) error {
	return fmt.Errorf("splice requires Linux")
}
