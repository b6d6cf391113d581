package uplink

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

const deviceIDLen = 16

// DeviceID derives a stable device identity from the machine id, hashed
// with the application name so the raw id is not exposed on the broker.
// A random id is used if the machine id is unavailable.
func DeviceID() string {
	id, err := machineid.ProtectedID("ttyio")
	if err != nil {
		glog.Warningf("machine id unavailable, using random device id: %v", err)
		id = uuid.New().String()
	}
	if len(id) > deviceIDLen {
		id = id[:deviceIDLen]
	}
	return id
}
