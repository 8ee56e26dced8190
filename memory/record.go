package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultThreadID is the thread used when none is given.
const DefaultThreadID = "default"

// Metadata keys persisted with every record.
const (
	KeyUserInput  = "user_input"
	KeyAIResponse = "ai_response"
	KeyTimestamp  = "timestamp"
	KeyThreadID   = "thread_id"
	KeyCreatedAt  = "created_at"
	KeyUpdatedAt  = "updated_at"
)

// recordNamespace scopes name-based record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nim-recall/conversations"))

// RecordID returns the content-derived id for a conversation turn.
// The same (userInput, aiResponse) pair always maps to the same id, so
// re-adding a turn updates rather than duplicates it.
func RecordID(userInput, aiResponse string) string {
	return uuid.NewSHA1(recordNamespace, []byte(Document(userInput, aiResponse))).String()
}

// Document is the text stored alongside a record's vector.
func Document(userInput, aiResponse string) string {
	return userInput + "|" + aiResponse
}

// EmbeddingText is the text embedded for a conversation turn.
func EmbeddingText(userInput, aiResponse string) string {
	return fmt.Sprintf("User: %s\nAI: %s", userInput, aiResponse)
}

// RecordMetadata is the metadata of one ConversationRecord.
// CreatedAt and UpdatedAt are stamped by the VectorStore.
type RecordMetadata struct {
	UserInput  string
	AIResponse string
	Timestamp  string
	ThreadID   string
	CreatedAt  string
	UpdatedAt  string
}

// ID returns the record id derived from the metadata content.
func (m RecordMetadata) ID() string {
	return RecordID(m.UserInput, m.AIResponse)
}

// Content renders the turn for prompt injection.
func (m RecordMetadata) Content() string {
	return EmbeddingText(m.UserInput, m.AIResponse)
}

// Time parses the record timestamp. Unparseable timestamps yield the zero
// time, which sorts oldest.
func (m RecordMetadata) Time() time.Time {
	t, _ := ParseTimestamp(m.Timestamp)
	return t
}

// Thread returns the thread id, defaulting to DefaultThreadID.
func (m RecordMetadata) Thread() string {
	if m.ThreadID == "" {
		return DefaultThreadID
	}
	return m.ThreadID
}

// ToMap converts metadata to the flat string map stored by the engine.
func (m RecordMetadata) ToMap() map[string]string {
	out := map[string]string{
		KeyUserInput:  m.UserInput,
		KeyAIResponse: m.AIResponse,
		KeyTimestamp:  m.Timestamp,
		KeyThreadID:   m.Thread(),
	}
	if m.CreatedAt != "" {
		out[KeyCreatedAt] = m.CreatedAt
	}
	if m.UpdatedAt != "" {
		out[KeyUpdatedAt] = m.UpdatedAt
	}
	return out
}

// MetadataFromMap hydrates metadata from a stored string map.
func MetadataFromMap(raw map[string]string) RecordMetadata {
	return RecordMetadata{
		UserInput:  raw[KeyUserInput],
		AIResponse: raw[KeyAIResponse],
		Timestamp:  raw[KeyTimestamp],
		ThreadID:   raw[KeyThreadID],
		CreatedAt:  raw[KeyCreatedAt],
		UpdatedAt:  raw[KeyUpdatedAt],
	}
}

// timestampLayouts covers RFC 3339 and the offset-less ISO-8601 form
// written by older versions of the memory file.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Timestamps without an
// offset are local time.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTimestamp renders an instant the way records store it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// displayTimestamp renders a stored timestamp as "2006-01-02 15:04".
// Unparseable values are returned unchanged.
func displayTimestamp(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02 15:04")
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
