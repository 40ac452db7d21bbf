package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "eeprom.go"

// MachineID retrieves an ID identifying the machine, hashed for this
// application. It falls back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// ShortMachineID returns the first 8 characters of MachineID.
func ShortMachineID() string {
	id := MachineID()
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
