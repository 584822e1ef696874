package session

import "fmt"

type ErrorCode int

const (
	NotInQueue ErrorCode = iota
	NotInMatch
	DuplicateName
)

func (c ErrorCode) String() string {
	switch c {
	case NotInQueue:
		return "NotInQueue"
	case NotInMatch:
		return "NotInMatch"
	case DuplicateName:
		return "DuplicateName"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

type SessionError struct {
	Code   ErrorCode
	Detail string
}

func (e *SessionError) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Detail
}

func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Code == e.Code
}

var (
	ErrNotInQueue    = &SessionError{Code: NotInQueue}
	ErrNotInMatch    = &SessionError{Code: NotInMatch}
	ErrDuplicateName = &SessionError{Code: DuplicateName}
)
