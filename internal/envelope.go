package internal

import (
	"encoding/json"
	"time"
)

const (
	EnvelopeText  = "text"
	EnvelopeChat  = "chat"
	EnvelopeUsers = "users"
	EnvelopeFile  = "file"
)

// ChatEnvelope is the decoded view of a relayed envelope. The relay itself
// keeps envelopes as raw JSON so that unknown fields pass through untouched.
type ChatEnvelope struct {
	Type string   `json:"type"`
	Name string   `json:"name,omitempty"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
	Mime string   `json:"mime,omitempty"`
	List []string `json:"list,omitempty"`
	Ts   int64    `json:"ts,omitempty"`
}

type textEnvelope struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

type presenceEnvelope struct {
	Type string   `json:"type"`
	List []string `json:"list"`
}

// StampEnvelope turns a client frame into the envelope broadcast to the room.
// A JSON object keeps all of its fields, gets name overwritten with the
// sender and ts filled in when missing. Anything else is wrapped as text.
func StampEnvelope(raw []byte, sender string, now time.Time) []byte {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return wrapText(string(raw), sender, now)
	}
	name, err := json.Marshal(sender)
	if err != nil {
		return wrapText(string(raw), sender, now)
	}
	fields["name"] = name
	if _, ok := fields["ts"]; !ok {
		fields["ts"] = json.RawMessage(formatUnix(now))
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return wrapText(string(raw), sender, now)
	}
	return encoded
}

// PresenceEnvelope builds the users snapshot in presence order.
func PresenceEnvelope(members []Member) []byte {
	names := make([]string, 0, len(members))
	for _, member := range members {
		names = append(names, member.Name)
	}
	encoded, _ := json.Marshal(presenceEnvelope{Type: EnvelopeUsers, List: names})
	return encoded
}

// DecodeEnvelope parses a relayed envelope for display.
func DecodeEnvelope(payload []byte) (ChatEnvelope, error) {
	var envelope ChatEnvelope
	err := json.Unmarshal(payload, &envelope)
	return envelope, err
}

func wrapText(text, sender string, now time.Time) []byte {
	encoded, _ := json.Marshal(textEnvelope{Type: EnvelopeText, Name: sender, Text: text, Ts: now.Unix()})
	return encoded
}

func formatUnix(now time.Time) string {
	encoded, _ := json.Marshal(now.Unix())
	return string(encoded)
}
