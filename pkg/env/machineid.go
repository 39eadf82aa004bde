package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "halspa"

// MachineID derives a short jig ID from the machine, without exposing the
// machine ID itself. It falls back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil || len(id) < 12 {
		glog.V(2).Infof("machine id unavailable: %v", err)
		host, _ := os.Hostname()
		return host
	}
	return id[:12]
}
