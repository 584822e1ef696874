package game

import (
	"errors"

	"connectfour/internal/session"
	"connectfour/internal/utils"

	"go.uber.org/zap"
)

// Notices sent to a client whose match ended without a result.
var (
	ErrOpponentDisconnected = errors.New("OpponentDisconnected: your opponent disconnected, you are back in the queue")
	ErrOpponentLeft         = errors.New("OpponentLeft: your opponent left the match, you are back in the queue")
	ErrOpponentUnreachable  = errors.New("MatchAborted: your opponent could not be reached, you are back in the queue")
)

// ErrMessageFailed is returned when a chat line could not be delivered.
var ErrMessageFailed = errors.New("MessageFailed: couldn't deliver message")

var errNotInMatch = &session.SessionError{Code: session.NotInMatch, Detail: "you are not in a match"}

func sendError(log *zap.Logger, to utils.Sender, err error) {
	utils.SendError(log, to, err)
}
