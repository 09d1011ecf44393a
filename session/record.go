package session

import (
	"time"

	"github.com/sweetpotato0/ai-groupchat/message"
)

// Record is the archived form of a session: its group conversation and how
// it ended. Live agent state is never persisted.
type Record struct {
	ID           string             `json:"id" bson:"_id"`
	State        State              `json:"state" bson:"state"`
	Participants []string           `json:"participants,omitempty" bson:"participants,omitempty"`
	Messages     []*message.Message `json:"messages,omitempty" bson:"messages,omitempty"`
	MaxRound     int                `json:"max_round,omitempty" bson:"max_round,omitempty"`
	Outcome      string             `json:"outcome,omitempty" bson:"outcome,omitempty"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
	Metadata     map[string]any     `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	c.Messages = message.CloneMessages(r.Messages)
	c.Metadata = cloneMetadata(r.Metadata)
	return &c
}

func cloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
