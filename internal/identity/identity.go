// Package identity supplies the installation and user the engine reports
// on behalf of.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
	"github.com/shirou/gopsutil/v3/host"
)

var log = logging.MustGetLogger("identity")

// Holder carries the installation id, fixed for the process, and the
// current user id, which the host application may change at any time.
type Holder struct {
	installationID string

	mu     sync.RWMutex
	userID string
}

// New returns a Holder. An empty installationID is derived from the host.
func New(installationID, userID string) *Holder {
	if installationID == "" {
		installationID = HostInstallationID()
	}
	return &Holder{installationID: installationID, userID: userID}
}

func (h *Holder) InstallationID() string { return h.installationID }

func (h *Holder) UserID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userID
}

// SetUserID changes the identity stamped on records created from now on.
func (h *Holder) SetUserID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userID != id {
		log.Infof("User id changed to %q", id)
	}
	h.userID = id
}

// HostInstallationID derives a stable installation id from the machine's
// host id, falling back to the hostname. The raw host id is hashed so it
// never leaves the machine.
func HostInstallationID() string {
	id, err := host.HostID()
	if err != nil || strings.TrimSpace(id) == "" {
		log.Debugf("Host id unavailable, using hostname: %v", err)
		id, _ = os.Hostname()
	}
	sum := sha256.Sum256([]byte("livesync:" + strings.TrimSpace(id)))
	return hex.EncodeToString(sum[:16])
}
