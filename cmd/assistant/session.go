package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/becomeliminal/nim-recall/config"
	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/search"
)

var (
	modelCommand  = regexp.MustCompile(`^model:\s*(\S+)$`)
	threadCommand = regexp.MustCompile(`^thread:\s*(\S+)$`)
	searchCommand = regexp.MustCompile(`^search:\s*(.*)$`)
)

// session is one interactive conversation.
type session struct {
	engine *engine.Engine
	memory *memory.Manager
	search search.Provider // Optional: nil disables "search:"
	config *config.Config
	model  string
	thread string
	out    io.Writer
}

// run reads lines from in until "exit" or EOF. The prompt is only printed
// for interactive input.
func (s *session) run(ctx context.Context, in io.Reader, interactive bool) {
	fmt.Fprintln(s.out, "Memory assistant. Commands: exit, clear, model: <name>, threads, thread: <id>, search: <query>, facts, forget")

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(s.out, "\n> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.handle(ctx, line) {
			break
		}
	}
	fmt.Fprintln(s.out, "Goodbye!")
}

// handle processes one input line. It returns false when the session ends.
func (s *session) handle(ctx context.Context, line string) bool {
	lower := strings.ToLower(line)

	switch lower {
	case "exit":
		return false
	case "clear":
		fmt.Fprint(s.out, "\033[H\033[2J")
		return true
	case "threads":
		s.printThreads(ctx)
		return true
	case "facts":
		s.printFacts()
		return true
	case "forget":
		if err := s.memory.ClearMemory(ctx); err != nil {
			fmt.Fprintf(s.out, "Error clearing memory: %v\n", err)
		} else {
			fmt.Fprintln(s.out, "All conversation memory cleared.")
		}
		return true
	}

	if m := modelCommand.FindStringSubmatch(lower); m != nil {
		if !s.config.HasModel(m[1]) {
			fmt.Fprintf(s.out, "Model %s not available. Available models: %s\n", m[1], strings.Join(s.modelNames(), ", "))
			return true
		}
		s.model = m[1]
		fmt.Fprintf(s.out, "Switched to %s model\n", s.model)
		return true
	}
	if m := threadCommand.FindStringSubmatch(line); m != nil {
		s.thread = m[1]
		fmt.Fprintf(s.out, "Switched to thread %s\n", s.thread)
		return true
	}

	input := &engine.Input{
		UserMessage: line,
		ThreadID:    s.thread,
		Model:       s.model,
	}
	if m := searchCommand.FindStringSubmatch(line); m != nil {
		input.SearchContext = s.lookup(ctx, m[1])
	}

	out, err := s.engine.Run(ctx, input)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return true
	}
	if out.Memories != "" {
		fmt.Fprintf(s.out, "\n--- Relevant Memories Found ---\n%s", out.Memories)
	}
	fmt.Fprintf(s.out, "\n[%s", out.Model)
	if out.Elapsed > 0 {
		fmt.Fprintf(s.out, ", %.2fs", out.Elapsed.Seconds())
	}
	fmt.Fprintf(s.out, "]\n%s\n", out.Text)
	return true
}

// lookup runs a web search and renders the results for the model. It
// returns "" when search is unavailable or fails.
func (s *session) lookup(ctx context.Context, query string) string {
	if s.search == nil {
		fmt.Fprintln(s.out, "Search is not enabled.")
		return ""
	}

	start := time.Now()
	results, err := s.search.Search(ctx, query, s.config.Search.MaxResults)
	if err != nil {
		log.Printf("[SEARCH] Search for %q failed: %v", query, err)
		fmt.Fprintf(s.out, "Search failed: %v\n", err)
		return ""
	}
	fmt.Fprintf(s.out, "[search, %d results, %.2fs]\n", len(results), time.Since(start).Seconds())
	return search.FormatResults(results)
}

func (s *session) printThreads(ctx context.Context) {
	threads, err := s.memory.ListThreads(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error listing threads: %v\n", err)
		return
	}
	if len(threads) == 0 {
		fmt.Fprintln(s.out, "No conversations yet.")
		return
	}

	names := make([]string, 0, len(threads))
	for name := range threads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		th := threads[name]
		marker := " "
		if name == s.thread {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s (%d conversations, last %s)\n", marker, th.Name, th.Count, th.LastUpdated)
	}
}

func (s *session) printFacts() {
	facts := s.memory.GetUserInfo()
	if len(facts) == 0 {
		fmt.Fprintln(s.out, "No facts remembered.")
		return
	}

	for _, k := range s.memory.UserInfoKeys() {
		fmt.Fprintf(s.out, "%s: %v\n", k, facts[k])
	}
}

func (s *session) modelNames() []string {
	aliases := s.config.ModelAliases()
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
