package db

import (
	"time"

	"github.com/google/uuid"
)

// Event is something the game server reports for persistence. Events are
// written after the fact and never read back by the server.
type Event interface {
	event()
}

type PlayerState string

const (
	PlayerIdle    PlayerState = "idle"
	PlayerQueued  PlayerState = "queued"
	PlayerPlaying PlayerState = "playing"
)

type PlayerEvent struct {
	Username string
	State    PlayerState
	At       time.Time
}

type MatchPhase int

const (
	MatchStarted MatchPhase = iota
	MatchMoved
	MatchEnded
)

type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeDraw      Outcome = "draw"
	OutcomeAbandoned Outcome = "abandoned"
)

type MoveRecord struct {
	Player int `bson:"player"`
	Row    int `bson:"row"`
	Col    int `bson:"col"`
}

// MatchEvent describes a match at one point in its life. Player names are
// empty for the AI side; Winner is 0 unless Outcome is OutcomeWin.
type MatchEvent struct {
	Phase         MatchPhase
	MatchID       string
	Player1       string
	Player2       string
	Board         [][]int
	CurrentPlayer int
	Winner        int
	Outcome       Outcome
	Moves         []MoveRecord
	StartedAt     time.Time
	At            time.Time
}

func (PlayerEvent) event() {}
func (MatchEvent) event()  {}

// PlayerID derives a stable row id from a username so the mirror never has
// to look players up.
func PlayerID(username string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("connectfour/player/"+username)).String()
}

func (e MatchEvent) playerName(n int) string {
	if n == 1 {
		return e.Player1
	}
	if n == 2 {
		return e.Player2
	}
	return ""
}
