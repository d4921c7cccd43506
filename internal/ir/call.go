package ir

import "encoding/base64"

// Op names a ledger entry point.
type Op string

const (
	OpPost  Op = "post"
	OpReply Op = "reply"
	OpGet   Op = "get"
	OpStats Op = "stats"
	OpLike  Op = "like"
	OpTip   Op = "tip"
	OpCount Op = "count"
)

// ValidOps lists every entry point the host accepts.
var ValidOps = map[Op]bool{
	OpPost:  true,
	OpReply: true,
	OpGet:   true,
	OpStats: true,
	OpLike:  true,
	OpTip:   true,
	OpCount: true,
}

// Mutates reports whether calls of this op write ledger state and are
// therefore journaled.
func (o Op) Mutates() bool {
	switch o {
	case OpPost, OpReply, OpLike, OpTip:
		return true
	}
	return false
}

// Call is one invocation of a ledger entry point, with the caller identity
// injected by the host. Only the fields meaningful for Op are set.
type Call struct {
	Op     Op       `json:"op"`
	Caller Identity `json:"caller"`

	// Recipient is the addressee of a post.
	Recipient Identity `json:"recipient,omitempty"`

	// Target is the reply target, or the message read, liked or tipped.
	Target MessageID `json:"target,omitempty"`

	Content  []byte  `json:"content,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
	Amount   int64   `json:"amount,omitempty"`
}

// object is the stored form of c: zero-valued optional fields are left out,
// and identities and nickname are kept byte for byte like content.
func (c Call) object() IRObject {
	obj := IRObject{
		"op":     IRString(c.Op),
		"caller": rawString(c.Caller),
	}
	if c.Recipient != "" {
		obj["recipient"] = rawString(c.Recipient)
	}
	if c.Target != 0 {
		obj["target"] = IRInt(c.Target)
	}
	if len(c.Content) > 0 {
		obj["content"] = IRString(base64.StdEncoding.EncodeToString(c.Content))
	}
	if c.Nickname != nil {
		obj["nickname"] = rawString(*c.Nickname)
	}
	if c.Amount != 0 {
		obj["amount"] = IRInt(c.Amount)
	}
	return obj
}

// callRecord is the stored shape of a Call, the inverse of Call.object.
type callRecord struct {
	Op        Op        `json:"op"`
	Caller    []byte    `json:"caller"`
	Recipient []byte    `json:"recipient"`
	Target    MessageID `json:"target"`
	Content   []byte    `json:"content"`
	Nickname  *[]byte   `json:"nickname"`
	Amount    int64     `json:"amount"`
}

func (r callRecord) call() Call {
	c := Call{
		Op:        r.Op,
		Caller:    Identity(r.Caller),
		Recipient: Identity(r.Recipient),
		Target:    r.Target,
		Content:   r.Content,
		Amount:    r.Amount,
	}
	if r.Nickname != nil {
		c.Nickname = Nick(string(*r.Nickname))
	}
	return c
}

// Result is what a call returns. Only the field for the call's Op is set,
// except Count, which always reports the highest assigned id after the call.
type Result struct {
	ID      MessageID `json:"id,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Stats   *Stats    `json:"stats,omitempty"`
	Count   MessageID `json:"count"`
}

// OutcomeOK is the journal outcome of a call that succeeded.
const OutcomeOK = "ok"

// JournalEntry records one mutating call and how it ended.
// Failed calls are journaled too; their Outcome is the ledger error code.
type JournalEntry struct {
	ID        string    `json:"id"` // Content-addressed, see CallID
	Seq       int64     `json:"seq"`
	CallToken string    `json:"call_token"`
	Call      Call      `json:"call"`
	Outcome   string    `json:"outcome"`
	ResultID  MessageID `json:"result_id,omitempty"`
}
