package ledger

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrBidNotFound       = errors.New("bid not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("not allowed to act on this resource")
	ErrNotClient         = errors.New("only clients can manage jobs")
	ErrNotFreelancer     = errors.New("only freelancers can bid")
	ErrInvalidTransition = errors.New("job status transition not allowed")
	ErrJobNotEditable    = errors.New("job can only be edited while draft or open")
	ErrJobNotOpen        = errors.New("job is not open for bids")
	ErrOwnJob            = errors.New("cannot bid on own job")
	ErrInvalidAmount     = errors.New("bid amount must be greater than zero")
	ErrDuplicateBid      = errors.New("freelancer already bid on this job")
	ErrBidNotPending     = errors.New("bid is no longer pending")
	ErrUnknownSkill      = errors.New("unknown skill id")
	ErrInvalidBudget     = errors.New("invalid budget")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}
