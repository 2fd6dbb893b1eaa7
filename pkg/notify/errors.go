package notify

import (
	"errors"
	"fmt"
)

// ErrDeliveryFailure indicates a notification could not be delivered.
var ErrDeliveryFailure = errors.New("notification delivery failed")

// DeliveryError wraps a channel failure with the endpoint it concerned.
type DeliveryError struct {
	// Channel is "mail" or "push".
	Channel string

	// Endpoint is the recipient address or host:port.
	Endpoint string

	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify %s %s: %v", e.Channel, e.Endpoint, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailure, e.Err}
}

// IsDeliveryFailure returns true if the error came from a failed delivery.
func IsDeliveryFailure(err error) bool {
	return errors.Is(err, ErrDeliveryFailure)
}
