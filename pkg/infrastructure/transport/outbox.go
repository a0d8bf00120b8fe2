package transport

import (
	"context"

	appoutbox "gitea.xscloud.ru/xscloud/reporter/pkg/application/outbox"
	"gitea.xscloud.ru/xscloud/reporter/pkg/application/reporter"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/outbox"
)

// NewOutboxSender stores events in the MySQL outbox of transportName. A send
// made with the context of a running unit of work joins its transaction.
func NewOutboxSender(appID, transportName string, uow mysql.UnitOfWork[mysql.ClientContext]) reporter.Sender[struct{}] {
	return NewDispatcherSender(outbox.NewEventDispatcher[reporter.Request](appID, transportName, JSONSerializer{}, uow))
}

func NewDispatcherSender(dispatcher appoutbox.EventDispatcher[reporter.Request]) reporter.Sender[struct{}] {
	return reporter.SenderFunc[struct{}](func(ctx context.Context, event string, params reporter.Params) (struct{}, error) {
		return struct{}{}, dispatcher.Dispatch(ctx, reporter.Request{Event: event, Params: params})
	})
}
