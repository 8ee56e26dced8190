// Package memory provides persistent, semantically searchable conversation
// memory for the assistant.
//
// Every conversation turn is stored as a vector record keyed by its content,
// so re-adding the same exchange updates the existing record. Retrieval tries
// vector similarity first and falls back to keyword overlap when the semantic
// search fails or finds nothing.
//
// Architecture:
//   - VectorStore: record persistence and similarity search (chromem-go)
//   - Embedder: text-to-vector conversion (ONNX all-MiniLM-L6-v2, with a
//     deterministic hash embedding when no model is available)
//   - RelevanceRanker: SemanticRanker, KeywordRanker and the FallbackRanker
//     policy composing them
//   - Manager: add, retrieve, evict, threads, user facts, legacy import
//
// Retention:
//   - Records beyond Config.MemoryLimit are evicted oldest first, but only on
//     the immediate-save path (Config.SaveImmediately or the SaveImmediately
//     option). Deferred adds are reconciled by Manager.Reconcile.
//
// Legacy format:
//   - The memory file {"conversations": [...], "user_info": {...}} is imported
//     once, when the vector store is empty at construction. The user_info
//     section remains the live store of user facts.
package memory
