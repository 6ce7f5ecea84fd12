package ledger

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrOverpayment      = errors.New("principal payment exceeds outstanding balance")
	ErrInvalidDate      = errors.New("payment date precedes last interest payment")
	ErrInsufficientData = errors.New("no active members to distribute to")
	ErrLoanNotActive    = errors.New("loan is not active")
)
