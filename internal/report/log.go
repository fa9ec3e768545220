package report

import (
	"context"
	"encoding/json"

	"github.com/livesync/backend/internal/session"
)

// LogSink writes every event to the log at info level.
type LogSink struct{}

func (LogSink) Report(_ context.Context, event string, props session.Properties) error {
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	log.Infof("%s %s", event, data)
	return nil
}
