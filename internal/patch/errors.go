package patch

import "errors"

var (
	ErrDiff  = errors.New("failed to compute patch")
	ErrApply = errors.New("failed to apply patch")
)
