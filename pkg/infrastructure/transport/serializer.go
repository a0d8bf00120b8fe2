package transport

import (
	"encoding/json"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/reporter"
)

const jsonContentType = "application/json"

// JSONSerializer encodes a request as {"event": ..., "params": {...}}.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(request reporter.Request) (string, error) {
	body, err := marshalRequest(request)
	return string(body), err
}

func marshalRequest(request reporter.Request) ([]byte, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode event %q", request.Event)
	}
	return body, nil
}
