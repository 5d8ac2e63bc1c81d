package mqtt

import "errors"

// Errors returned by Connect and Publish. Check with errors.Is.
var (
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")
)
