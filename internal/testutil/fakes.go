// Package testutil holds deterministic stand-ins for the embedding and chat
// services so tests never reach the network.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"pdf-qa/internal/models"
)

const Dimensions = 256

// Embedder hashes lower-cased words into a fixed-size normalized vector, so
// texts sharing words end up close to each other.
type Embedder struct {
	mu           sync.Mutex
	DocumentCall int
	QueryCall    int
	Err          error
}

func (e *Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.DocumentCall++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.QueryCall++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return Vector(text), nil
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DocumentCall + e.QueryCall
}

// Vector is the bag-of-words embedding used by Embedder
func Vector(text string) []float32 {
	v := make([]float32, Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%Dimensions]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// GenerateCall records one call made to Generator
type GenerateCall struct {
	Prompt  string
	History []models.Turn
}

// Generator answers with Reply if set, otherwise echoes the prompt it received
type Generator struct {
	mu    sync.Mutex
	Reply func(prompt string, history []models.Turn) (string, error)
	Calls []GenerateCall
}

func (g *Generator) Generate(_ context.Context, prompt string, history []models.Turn) (string, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, GenerateCall{Prompt: prompt, History: append([]models.Turn(nil), history...)})
	g.mu.Unlock()
	if g.Reply != nil {
		return g.Reply(prompt, history)
	}
	return prompt, nil
}

func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}
