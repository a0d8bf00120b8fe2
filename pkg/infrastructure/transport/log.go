package transport

import (
	"context"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
	"gitea.xscloud.ru/xscloud/reporter/pkg/application/reporter"
)

const (
	eventKey  = "event"
	paramsKey = "params"
)

// NewLogSender writes every event as an info entry.
func NewLogSender(logger logging.Logger) reporter.Sender[struct{}] {
	return reporter.SenderFunc[struct{}](func(_ context.Context, event string, params reporter.Params) (struct{}, error) {
		logger.WithFields(logging.Fields{
			eventKey:  event,
			paramsKey: map[string]interface{}(params),
		}).Info("event reported")
		return struct{}{}, nil
	})
}
