package exception

import "github.com/yanun0323/errors"

// Order errors
var (
	ErrOrderNotFound        = errors.New("order: not found")
	ErrOrderNotSubmitted    = errors.New("order: not submitted")
	ErrOrderAlreadyFilled   = errors.New("order: already filled")
	ErrOrderAlreadyCanceled = errors.New("order: already canceled")
	ErrOrderEmptyLegs       = errors.New("order: empty leg collection")
	ErrOrderInvalidPrice    = errors.New("order: invalid price")
)
