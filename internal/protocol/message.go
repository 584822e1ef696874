package protocol

// Kind is the value of the "type" field that discriminates every message.
type Kind string

const (
	KindJoinQueue   Kind = "JOIN_QUEUE"
	KindStartMatch  Kind = "START_MATCH"
	KindPlayTurn    Kind = "PLAY_TURN"
	KindGameUpdate  Kind = "GAME_UPDATE"
	KindEndGame     Kind = "END_GAME"
	KindError       Kind = "ERROR"
	KindChatMessage Kind = "CHAT_MESSAGE"
	KindQueueUpdate Kind = "QUEUE_UPDATE"
)

// Message is one of the closed set of variants below. Decode always
// returns pointers; Encode accepts values or pointers.
type Message interface {
	Kind() Kind
}

// JoinQueue registers the sender under a username and puts it in the queue.
type JoinQueue struct {
	Username   string `json:"username"`
	PlayWithAI bool   `json:"play_with_ai"`
}

// StartMatch tells a client it has been paired and which side it plays.
type StartMatch struct {
	Player   int     `json:"player"`
	Board    [][]int `json:"board"`
	Opponent string  `json:"opponent"`
}

// PlayTurn asks to drop a token into Col. Row is advisory and ignored.
type PlayTurn struct {
	Row *int `json:"row"`
	Col int  `json:"col"`
}

type GameUpdate struct {
	Board         [][]int `json:"board"`
	CurrentPlayer int     `json:"current_player"`
}

// EndGame carries the winning player number, or nil for a draw.
type EndGame struct {
	Winner *int `json:"winner"`
}

type Error struct {
	Message string `json:"message"`
}

type ChatMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type QueueUpdate struct {
	QueueSize int `json:"queue_size"`
}

func (JoinQueue) Kind() Kind   { return KindJoinQueue }
func (StartMatch) Kind() Kind  { return KindStartMatch }
func (PlayTurn) Kind() Kind    { return KindPlayTurn }
func (GameUpdate) Kind() Kind  { return KindGameUpdate }
func (EndGame) Kind() Kind     { return KindEndGame }
func (Error) Kind() Kind       { return KindError }
func (ChatMessage) Kind() Kind { return KindChatMessage }
func (QueueUpdate) Kind() Kind { return KindQueueUpdate }

// IntPtr is a helper for optional integer fields such as EndGame.Winner.
func IntPtr(v int) *int {
	return &v
}
