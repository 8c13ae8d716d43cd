package engine

import "fmt"

// CalcError is one failure from a calculation pass. Object is empty for
// pass-level failures such as a timeout. Both drivers are normalized to
// produce lists of these regardless of the underlying call shape.
type CalcError struct {
	Object string
	Err    error
}

func (e CalcError) Error() string {
	if e.Object == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Object, e.Err)
}

func (e CalcError) Unwrap() error { return e.Err }
