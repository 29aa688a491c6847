package instrument

import (
	"github.com/pkg/errors"
)

// ErrInvariant marks a defect in the rewriting engine itself: a call site
// processed twice, a routine handle missing after initialisation, a call of
// the wrong shape. It is never caused by the input program.
var ErrInvariant = errors.New("instrumentation invariant violated")

func invariantf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvariant, format, args...)
}

// IsInvariant reports whether err was caused by an engine defect
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}
