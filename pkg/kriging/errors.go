package kriging

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch reports a shape precondition violation: sites and
	// responses with different row counts, bound vectors whose length differs
	// from θ, or a query point whose dimension differs from the training sites.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnderdetermined reports a regression basis with more terms than
	// design sites.
	ErrUnderdetermined = fmt.Errorf("%w: least squares problem is underdetermined", ErrDimensionMismatch)

	// ErrInvalidBounds reports hyperparameter bounds that do not satisfy
	// 0 < lower <= upper, or a non-positive fixed θ.
	ErrInvalidBounds = errors.New("invalid hyperparameter bounds")

	// ErrIllConditionedDesign reports a design for which no correlation
	// matrix could be factorized, typically because two sites coincide.
	// Merge duplicate sites (see package dsmerge) and retry.
	ErrIllConditionedDesign = errors.New("ill-conditioned design")

	// ErrNonConvergence is returned by Perf.Err when the hyperparameter search
	// stopped at its iteration cap or budget. The accompanying model is still
	// the best one found.
	ErrNonConvergence = errors.New("hyperparameter search did not converge")
)
