package steering

import "errors"

var (
	// ErrSensorUnavailable means a configured sensor never answered.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrSensorUnhealthy means the absolute encoder reported itself unhealthy.
	ErrSensorUnhealthy = errors.New("absolute encoder unhealthy")
	// ErrActuatorWriteRejected means the motor controller refused a write.
	ErrActuatorWriteRejected = errors.New("actuator write rejected")
	// ErrDriftWhileMoving means drift correction was requested while the
	// mechanism was moving. Nothing was changed.
	ErrDriftWhileMoving = errors.New("drift correction requested while moving")
)
