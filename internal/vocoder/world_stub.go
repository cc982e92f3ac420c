//go:build !world || !cgo

package vocoder

import "fmt"

func newWorldBackend() (Backend, error) {
	return nil, fmt.Errorf("world backend not built: rebuild with -tags world and cgo enabled")
}
