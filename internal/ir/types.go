package ir

// Identity is an opaque, comparable token naming a caller or an addressee.
// The ledger never authenticates identities; the host supplies a verified
// value for every call.
type Identity string

// MessageID numbers a message slot. Assigned ids start at 1.
type MessageID int64

// NoReply is the in_reply_to value of a message that answers nothing.
const NoReply MessageID = 0

// Valid reports whether id can name a stored message.
func (id MessageID) Valid() bool {
	return id >= 1
}

// Message is one posted or reply record ("flyt"). Immutable once stored.
type Message struct {
	Sender Identity `json:"sender"`

	// Nickname is the optional display label of the sender.
	// nil means no nickname was given; a pointer to "" means it was
	// explicitly set to empty.
	Nickname *string `json:"sender_nickname,omitempty"`

	Recipient Identity  `json:"recipient"`
	Content   []byte    `json:"content"`
	InReplyTo MessageID `json:"in_reply_to"`
}

// Nick returns the sender nickname, or "" when none was given.
func (m Message) Nick() string {
	if m.Nickname == nil {
		return ""
	}
	return *m.Nickname
}

// IsReply reports whether m answers an earlier message.
func (m Message) IsReply() bool {
	return m.InReplyTo != NoReply
}

// Stats holds the mutable engagement counters paired with one Message.
type Stats struct {
	LikeCount int64 `json:"like_count"`
	TipTotal  int64 `json:"tip_total"`
}

// Nick returns a pointer to s for use as an optional nickname.
func Nick(s string) *string {
	return &s
}
