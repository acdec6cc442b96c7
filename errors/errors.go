package errors

import "fmt"

var (
	ErrAuthAbsent        = fmt.Errorf("no credential available")
	ErrInvalidState      = fmt.Errorf("operation not valid in current session state")
	ErrAlreadySubscribed = fmt.Errorf("channel already holds a live subscription")
	ErrNotSubscribed     = fmt.Errorf("channel is not subscribed")
	ErrAnnounceLost      = fmt.Errorf("presence announce attempted before subscription acknowledgment")
	ErrSubscribeTimeout  = fmt.Errorf("transport did not confirm subscription in time")
	ErrInvalidPassword   = fmt.Errorf("password does not meet complexity requirements")
	ErrUnknownUser       = fmt.Errorf("unknown user or wrong password")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
)
