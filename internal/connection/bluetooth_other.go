//go:build !linux

package connection

import "errors"

func newBLECentral() (bleCentral, error) {
	return nil, errors.New("bluetooth scanning is only supported on linux")
}
