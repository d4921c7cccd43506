package ir

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// rawString stores the bytes of s as base64. Identities and nicknames are
// opaque tokens, so they must come back byte for byte: a plain JSON string
// would be NFC normalized and lose invalid UTF-8.
func rawString[S ~string](s S) IRString {
	return IRString(base64.StdEncoding.EncodeToString([]byte(s)))
}

// messageRecord is the stored shape of a Message. []byte fields decode
// from base64.
type messageRecord struct {
	Sender    []byte    `json:"sender"`
	Nickname  *[]byte   `json:"sender_nickname,omitempty"`
	Recipient []byte    `json:"recipient"`
	Content   []byte    `json:"content"`
	InReplyTo MessageID `json:"in_reply_to"`
}

// messageObject builds the canonical form of m. The nickname key is present
// only when a nickname was given, so "absent" and "empty" stay distinct.
func messageObject(m Message) IRObject {
	obj := IRObject{
		"sender":      rawString(m.Sender),
		"recipient":   rawString(m.Recipient),
		"content":     IRString(base64.StdEncoding.EncodeToString(m.Content)),
		"in_reply_to": IRInt(m.InReplyTo),
	}
	if m.Nickname != nil {
		obj["sender_nickname"] = rawString(*m.Nickname)
	}
	return obj
}

// EncodeMessage serializes m for storage.
func EncodeMessage(m Message) ([]byte, error) {
	data, err := MarshalCanonical(messageObject(m))
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a stored message.
func DecodeMessage(data []byte) (Message, error) {
	var r messageRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	m := Message{
		Sender:    Identity(r.Sender),
		Recipient: Identity(r.Recipient),
		Content:   r.Content,
		InReplyTo: r.InReplyTo,
	}
	if r.Nickname != nil {
		m.Nickname = Nick(string(*r.Nickname))
	}
	if m.Content == nil {
		m.Content = []byte{}
	}
	return m, nil
}

// EncodeStats serializes s for storage.
func EncodeStats(s Stats) ([]byte, error) {
	data, err := MarshalCanonical(IRObject{
		"like_count": IRInt(s.LikeCount),
		"tip_total":  IRInt(s.TipTotal),
	})
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return data, nil
}

// DecodeStats parses a stored stats record.
func DecodeStats(data []byte) (Stats, error) {
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	if s.LikeCount < 0 || s.TipTotal < 0 {
		return Stats{}, fmt.Errorf("decode stats: negative counter in %s", data)
	}
	return s, nil
}

// EncodeCounter serializes a sequence counter value.
func EncodeCounter(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

// DecodeCounter parses a stored sequence counter value.
func DecodeCounter(data []byte) (int64, error) {
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("decode counter: negative value %d", n)
	}
	return n, nil
}

// EncodeJournalEntry serializes e for storage.
func EncodeJournalEntry(e JournalEntry) ([]byte, error) {
	obj := IRObject{
		"id":         IRString(e.ID),
		"seq":        IRInt(e.Seq),
		"call_token": IRString(e.CallToken),
		"call":       e.Call.object(),
		"outcome":    IRString(e.Outcome),
	}
	if e.ResultID != 0 {
		obj["result_id"] = IRInt(e.ResultID)
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("encode journal entry: %w", err)
	}
	return data, nil
}

// DecodeJournalEntry parses a stored journal entry.
func DecodeJournalEntry(data []byte) (JournalEntry, error) {
	var r struct {
		ID        string     `json:"id"`
		Seq       int64      `json:"seq"`
		CallToken string     `json:"call_token"`
		Call      callRecord `json:"call"`
		Outcome   string     `json:"outcome"`
		ResultID  MessageID  `json:"result_id"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return JournalEntry{}, fmt.Errorf("decode journal entry: %w", err)
	}
	return JournalEntry{
		ID:        r.ID,
		Seq:       r.Seq,
		CallToken: r.CallToken,
		Call:      r.Call.call(),
		Outcome:   r.Outcome,
		ResultID:  r.ResultID,
	}, nil
}
