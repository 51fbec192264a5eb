//go:build linux

package connection

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 10 * time.Second

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all
}

func newBLECentral() (bleCentral, error) {
	return linux.NewDevice(ble.OptDialerTimeout(bleTimeout), ble.OptScanParams(scanParams))
}
