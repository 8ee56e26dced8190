package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LegacyConversation is one turn of the flat-file memory format.
type LegacyConversation struct {
	Timestamp  string `json:"timestamp"`
	UserInput  string `json:"user_input"`
	AIResponse string `json:"ai_response"`
}

// decodeLegacyConversations decodes the conversations array of the memory
// file. Malformed entries are logged and skipped.
func decodeLegacyConversations(raw json.RawMessage) ([]LegacyConversation, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	convs := make([]LegacyConversation, 0, len(entries))
	for i, entry := range entries {
		var conv LegacyConversation
		if err := json.Unmarshal(entry, &conv); err != nil {
			log.Printf("[MEMORY] Skipping legacy conversation #%d: %v", i+1, err)
			continue
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// importLegacy copies legacy conversations into the vector store. It only
// runs while the store is empty. Once the store holds records the
// conversations section is dropped from the memory file, so clearing memory
// never brings legacy turns back. Returns the number of records imported.
func (m *Manager) importLegacy(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "memory.ImportLegacy")
	defer span.End()
	defer m.retireLegacy()

	if m.store.Count() > 0 {
		span.SetAttributes(attribute.Bool("memory.import.skipped", true))
		return 0
	}

	convs, err := decodeLegacyConversations(m.facts.conversations)
	if err != nil {
		log.Printf("[MEMORY] Failed to read legacy conversations: %v", err)
		span.SetStatus(codes.Error, err.Error())
		return 0
	}
	if len(convs) == 0 {
		return 0
	}

	log.Printf("[MEMORY] Importing %d conversations from legacy format", len(convs))

	imported := 0
	for i, conv := range convs {
		timestamp := conv.Timestamp
		if timestamp == "" {
			timestamp = FormatTimestamp(m.now())
		}
		if err := m.storeTurn(ctx, conv.UserInput, conv.AIResponse, timestamp, DefaultThreadID); err != nil {
			log.Printf("[MEMORY] Failed to import legacy conversation #%d: %v", i+1, err)
			continue
		}
		imported++
	}

	span.SetAttributes(attribute.Int("memory.import.count", imported))
	log.Printf("[MEMORY] Legacy conversation import complete (%d/%d)", imported, len(convs))
	return imported
}

// retireLegacy drops the imported conversations from the memory file. It
// keeps them while the store is still empty so a failed import can retry.
func (m *Manager) retireLegacy() {
	if m.store.Count() == 0 {
		return
	}
	if err := m.facts.retireConversations(); err != nil {
		log.Printf("[MEMORY] Failed to drop imported conversations from memory file: %v", err)
	}
}
