package outbox

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const correlationIDSeparator = ":"

// newCorrelationID is "<app id>:<payload hash>:<uuid v7>", so duplicates of
// a payload can be spotted by consumers while every id stays unique.
func newCorrelationID(appID, payload string) (string, error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return "", errors.WithStack(err)
	}

	payloadHash := sha256.Sum256([]byte(payload))
	return strings.Join(
		[]string{
			appID,
			base64.RawURLEncoding.EncodeToString(payloadHash[:]),
			uid.String(),
		},
		correlationIDSeparator,
	), nil
}
