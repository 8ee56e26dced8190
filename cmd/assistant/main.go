// Command assistant is a terminal chat assistant with long-term memory.
//
// Configuration comes from an optional YAML file (-config), a .env file and
// the environment. Without an API key it runs in local-only mode.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/becomeliminal/nim-recall/config"
	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/cache"
	"github.com/becomeliminal/nim-recall/memory/embedder/fallback"
	"github.com/becomeliminal/nim-recall/memory/embedder/onnx"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
	"github.com/becomeliminal/nim-recall/search"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// ============================================================================
	// CONFIGURATION
	// ============================================================================
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx := context.Background()

	// ============================================================================
	// MEMORY SYSTEM SETUP
	// ============================================================================
	log.Println("📦 Setting up memory system...")

	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	storeOpts := []chromem.Option{
		chromem.WithPath(cfg.VectorDBDir()),
		chromem.WithDimensions(cfg.Memory.Dimensions),
	}
	if cfg.Memory.Compress {
		storeOpts = append(storeOpts, chromem.WithCompression())
	}
	store, err := chromem.New(storeOpts...)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	mem, err := memory.NewManager(ctx, store, embedder, cfg.ManagerConfig())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer mem.Close()
	log.Printf("✅ Memory ready (%d conversations)", mem.Count())

	// ============================================================================
	// MODEL SETUP
	// ============================================================================
	opts := []engine.Option{engine.WithHistoryLimit(cfg.Memory.HistoryLimit)}
	if provider := newProvider(cfg); provider != nil {
		opts = append(opts, engine.WithProvider(provider))
		log.Printf("✅ Using %s", cfg.LLM.Provider)
	} else {
		log.Println("⚠️  No API key configured. Running in local-only mode with limited functionality.")
	}

	s := &session{
		engine: engine.NewEngine(mem, opts...),
		memory: mem,
		search: newSearch(cfg),
		config: cfg,
		model:  cfg.StartModel(),
		thread: memory.DefaultThreadID,
		out:    os.Stdout,
	}
	s.run(ctx, os.Stdin, term.IsTerminal(int(os.Stdin.Fd())))
}

// newEmbedder builds the embedding chain: sentence encoder (when
// configured), hash fallback, then the cache.
func newEmbedder(cfg *config.Config) (*cache.Embedder, error) {
	var primary memory.Embedder
	if cfg.Embedder.ONNXModel != "" {
		encoder, err := onnx.New(onnx.Config{
			ModelPath:         cfg.Embedder.ONNXModel,
			TokenizerPath:     cfg.Embedder.ONNXTokenizer,
			SharedLibraryPath: cfg.Embedder.SharedLibrary,
			Dimensions:        cfg.Memory.Dimensions,
			MaxSequenceLength: cfg.Embedder.MaxSequenceLength,
		})
		if err != nil {
			log.Printf("⚠️  Sentence encoder unavailable: %v", err)
		} else {
			primary = encoder
		}
	}

	return cache.New(fallback.New(primary, cfg.Memory.Dimensions), cfg.Memory.EmbedCacheSize)
}

// newSearch returns the web search client, or nil when search is disabled.
func newSearch(cfg *config.Config) search.Provider {
	if !cfg.Search.Enabled {
		return nil
	}
	var opts []search.DuckDuckGoOption
	if cfg.Search.BaseURL != "" {
		opts = append(opts, search.WithBaseURL(cfg.Search.BaseURL))
	}
	return search.NewDuckDuckGo(opts...)
}

// newProvider returns the configured model provider, or nil without an API
// key.
func newProvider(cfg *config.Config) llm.Provider {
	if cfg.APIKey() == "" {
		return nil
	}
	if cfg.LLM.Provider == config.ProviderAnthropic {
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:    cfg.LLM.AnthropicAPIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Models:    cfg.LLM.AnthropicModels,
			Model:     cfg.LLM.AnthropicModel,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	}
	return llm.NewOpenRouter(llm.OpenRouterConfig{
		APIKey:       cfg.LLM.OpenRouterAPIKey,
		BaseURL:      cfg.LLM.BaseURL,
		SiteURL:      cfg.LLM.SiteURL,
		SiteName:     cfg.LLM.SiteName,
		Models:       cfg.LLM.Models,
		DefaultModel: cfg.LLM.DefaultModel,
		Alternates:   cfg.LLM.Alternates,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
}
