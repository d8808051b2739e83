package whatsapp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when the session is not up. Callers
// decide whether to retry after checking the connector status.
var ErrNotConnected = errors.New("whatsapp not connected")

// TransportError wraps a rejection from the network layer for a specific
// recipient. It does not imply the session itself is down.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
