package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

// KillSwitch is a sentinel file an operator creates to halt trading. The
// engine checks it before a run and again before every order-mutating call;
// while the file exists no order leaves the process. Clearing it is a
// deliberate operator action, never automatic.
type KillSwitch struct {
	path string
}

// NewKillSwitch returns a switch backed by the sentinel file at path.
func NewKillSwitch(path string) *KillSwitch {
	return &KillSwitch{path: path}
}

// Engaged reports whether the sentinel file exists. Any stat error other
// than absence is treated as engaged: when in doubt, do not trade.
func (k *KillSwitch) Engaged() bool {
	if k == nil || k.path == "" {
		return false
	}
	_, err := os.Stat(k.path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	logs.Warnf("kill switch stat failed, treating as engaged: %+v", err)
	return true
}

// Engage creates the sentinel file with a note about who pulled it and why.
func (k *KillSwitch) Engage(reason string) error {
	if k == nil || k.path == "" {
		return nil
	}
	body := fmt.Sprintf("engaged at %s\nreason: %s\n",
		time.Now().UTC().Format(time.RFC3339), reason)
	return os.WriteFile(k.path, []byte(body), 0o644)
}

// Path returns the sentinel location, for operator-facing messages.
func (k *KillSwitch) Path() string { return k.path }
