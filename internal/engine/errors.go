package engine

import "errors"

// PreconditionError rejects a sync or discovery request before the run is
// considered to have started: no partial work is performed and no audit
// entry is written. The Reason is safe to show to the operator.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// IsPrecondition reports whether err is (or wraps) a [*PreconditionError].
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
