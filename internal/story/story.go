// Package story generates story continuations that build on the previous
// turns of a conversation.
package story

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/llm"
)

// Types lists the story archetypes a continuation can follow.
var Types = []string{
	"overcoming the monster",
	"rags to riches",
	"the quest",
	"voyage/journey and return",
	"rebirth",
	"tragedy",
	"comedy",
}

// Genres lists the supported story genres.
var Genres = []string{
	"fantasy",
	"historical",
	"fiction",
	"horror",
	"mystery",
	"romance",
	"science fiction",
	"relationship fiction",
	"suspense",
	"thrillers",
	"action adventure",
}

var (
	// ErrInvalidChoice is returned for a type or genre outside Types and Genres.
	ErrInvalidChoice = errors.New("invalid story choice")
	// ErrEmptyPrompt is returned when no story prompt was given.
	ErrEmptyPrompt = errors.New("please enter a story prompt")
)

const continuationPrompt = `You are an AI that helps generate %s stories in the %s genre. Based on the following prompt and history, generate a continuation for the story:

History: %s

Prompt: %s

Continuation:`

// Turn is one prompt and the continuation it produced.
type Turn struct {
	Prompt       string `json:"prompt"`
	Continuation string `json:"continuation"`
}

// Memory keeps every turn of a story conversation.
type Memory struct {
	mu    sync.Mutex
	turns []Turn
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends a turn.
func (m *Memory) Add(prompt, continuation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Prompt: prompt, Continuation: continuation})
}

// Turns returns a copy of the recorded turns, oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.turns)
}

// History renders the turns as alternating "Human:" and "AI:" lines.
func (m *Memory) History() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, 0, 2*len(m.turns))
	for _, t := range m.turns {
		lines = append(lines, "Human: "+t.Prompt, "AI: "+t.Continuation)
	}
	return strings.Join(lines, "\n")
}

// Clear forgets all turns.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Generator writes story continuations with a language model.
type Generator struct {
	gen llm.Generator
	log *zap.Logger
}

// NewGenerator creates a Generator backed by gen.
func NewGenerator(gen llm.Generator, log *zap.Logger) *Generator {
	return &Generator{gen: gen, log: log}
}

// Validate checks a story type, genre and prompt.
func Validate(storyType, genre, prompt string) error {
	if !slices.Contains(Types, storyType) {
		return fmt.Errorf("%w: unknown story type %q", ErrInvalidChoice, storyType)
	}
	if !slices.Contains(Genres, genre) {
		return fmt.Errorf("%w: unknown genre %q", ErrInvalidChoice, genre)
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// Continue asks the model to continue the story in mem and records the turn.
// When the model call fails its diagnostic is returned as the continuation.
func (g *Generator) Continue(ctx context.Context, mem *Memory, storyType, genre, prompt string) (string, error) {
	if err := Validate(storyType, genre, prompt); err != nil {
		return "", err
	}

	res := g.gen.Generate(ctx, fmt.Sprintf(continuationPrompt, storyType, genre, mem.History(), prompt))
	text := res.Text()
	mem.Add(prompt, text)

	g.log.Info("story continued",
		zap.String("type", storyType),
		zap.String("genre", genre),
		zap.Bool("upstream_ok", res.OK()))
	return text, nil
}
