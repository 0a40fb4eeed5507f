package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Sender delivers an alert message to an operator channel.
type Sender interface {
	Send(subject, body string) error
}

// LogSender writes alerts to the structured log. It is the default sink when
// no external channel is configured.
type LogSender struct{}

func (LogSender) Send(subject, body string) error {
	logs.Errorf("ALERT: %s: %s", subject, body)
	return nil
}

// Alerter rate-limits alerts to once per UTC day per key using dated flag
// files. A crashed process must not re-alert on every restart within the
// same day, and a flapping condition must not page the operator repeatedly.
type Alerter struct {
	dir    string
	sender Sender
	now    func() time.Time
}

// NewAlerter builds an alerter writing flag files under dir.
func NewAlerter(dir string, sender Sender) *Alerter {
	if sender == nil {
		sender = LogSender{}
	}
	return &Alerter{dir: dir, sender: sender, now: time.Now}
}

// Alert sends at most one alert per key per UTC day. The flag file is
// written before sending so a failing sender still suppresses a retry storm.
func (a *Alerter) Alert(key, subject, body string) error {
	day := a.now().UTC().Format("2006-01-02")
	flag := filepath.Join(a.dir, fmt.Sprintf("alert_%s_%s.flag", key, day))

	if _, err := os.Stat(flag); err == nil {
		logs.Infof("alert %q already sent today, suppressing", key)
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return errors.Wrap(err, "create alert dir")
	}
	if err := os.WriteFile(flag, []byte(subject+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "write alert flag")
	}
	if err := a.sender.Send(subject, body); err != nil {
		return errors.Wrap(err, "send alert")
	}
	return nil
}
