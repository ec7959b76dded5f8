package delivery

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("last wish settings not found")
	ErrNotArmed            = errors.New("last wish is not enabled or not active")
	ErrAlreadyTriggered    = errors.New("last wish delivery already triggered")
	ErrNoCheckIn           = errors.New("last wish has no recorded check-in")
	ErrNotOverdue          = errors.New("user is not overdue yet")
	ErrNoRecipients        = errors.New("no recipients configured")
	ErrInvalidSettings     = errors.New("invalid last wish settings")
	ErrMailerNotConfigured = errors.New("mail transport not configured")
	ErrSendTimeout         = errors.New("send timed out")
)

// NotOverdueError carries the deadline back to the operator who asked for a
// manual trigger too early.
type NotOverdueError struct {
	Deadline time.Time
	Now      time.Time
}

func (e *NotOverdueError) Error() string {
	return fmt.Sprintf("user is not overdue yet: deadline %s, now %s",
		e.Deadline.UTC().Format(time.RFC3339), e.Now.UTC().Format(time.RFC3339))
}

func (e *NotOverdueError) Unwrap() error { return ErrNotOverdue }

// temporary is implemented by transport errors that are safe to retry.
type temporary interface {
	Temporary() bool
}

func isTemporary(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}
