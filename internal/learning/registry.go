// Package learning provides the in-memory learning registry: self-reported
// lessons from past tasks plus the running agent metrics derived from them.
package learning

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskmindhq/taskmind/internal/models"
)

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Registry holds learning entries and metrics in memory. Like the task
// registry it is instance-based with an internal mutex.
type Registry struct {
	mu      sync.Mutex
	entries []*models.LearningEntry
	metrics models.AgentMetrics

	// completionSamples counts the durations folded into
	// AvgCompletionSeconds. It is independent of CompletedTasks, which
	// counts success-outcome learnings.
	completionSamples int
}

// NewRegistry creates an empty learning registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Record stores a learning entry and updates the running metrics: total
// count always increments, completed on success, failed on failure. Success
// rate is recomputed as completed/total.
func (r *Registry) Record(e models.LearningEntry) *models.LearningEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = newULID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	stored := e
	r.entries = append(r.entries, &stored)

	r.metrics.TotalTasks++
	switch e.Outcome {
	case models.OutcomeSuccess:
		r.metrics.CompletedTasks++
	case models.OutcomeFailure:
		r.metrics.FailedTasks++
	}
	r.metrics.SuccessRate = float64(r.metrics.CompletedTasks) / float64(r.metrics.TotalTasks)
	r.metrics.LastActive = time.Now().UTC()

	out := stored
	return &out
}

// RecordCompletion folds a task's wall-clock duration into the running
// average completion time.
func (r *Registry) RecordCompletion(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := float64(r.completionSamples)
	r.metrics.AvgCompletionSeconds = (r.metrics.AvgCompletionSeconds*n + d.Seconds()) / (n + 1)
	r.completionSamples++
}

// AddTokens accumulates vendor-reported token usage.
func (r *Registry) AddTokens(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.TokensUsed += n
	r.metrics.LastActive = time.Now().UTC()
}

// Similar returns entries whose pattern shares whole words with the query,
// ranked by raw match count descending and capped at limit. Matching is
// purely lexical.
func (r *Registry) Similar(query string, limit int) []*models.LearningEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	words := queryWords(query)
	if len(words) == 0 || limit <= 0 {
		return nil
	}

	type scored struct {
		entry *models.LearningEntry
		score int
	}
	var matches []scored
	for _, e := range r.entries {
		patternWords := wordSet(e.Pattern)
		score := 0
		for _, w := range words {
			if patternWords[w] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]*models.LearningEntry, len(matches))
	for i, m := range matches {
		e := *m.entry
		out[i] = &e
	}
	return out
}

// Improvements returns all non-empty improvement suggestions, deduplicated
// by first occurrence.
func (r *Registry) Improvements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range r.entries {
		if e.Improvement == "" || seen[e.Improvement] {
			continue
		}
		seen[e.Improvement] = true
		out = append(out, e.Improvement)
	}
	return out
}

// Metrics returns a copy of the current metrics.
func (r *Registry) Metrics() models.AgentMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Entries returns copies of all recorded entries in insertion order.
func (r *Registry) Entries() []*models.LearningEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.LearningEntry, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}

// Len returns the number of recorded entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all entries and resets metrics.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.metrics = models.AgentMetrics{}
	r.completionSamples = 0
}

// Report renders a human-readable summary of recorded learnings.
func (r *Registry) Report() string {
	r.mu.Lock()
	entries := len(r.entries)
	m := r.metrics
	r.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Learning Report\n")
	sb.WriteString("===============\n")
	fmt.Fprintf(&sb, "Entries recorded:  %d\n", entries)
	fmt.Fprintf(&sb, "Tasks observed:    %d (completed %d, failed %d)\n",
		m.TotalTasks, m.CompletedTasks, m.FailedTasks)
	fmt.Fprintf(&sb, "Success rate:      %.1f%%\n", m.SuccessRate*100)
	if m.AvgCompletionSeconds > 0 {
		fmt.Fprintf(&sb, "Avg completion:    %.1fs\n", m.AvgCompletionSeconds)
	}
	if m.TokensUsed > 0 {
		fmt.Fprintf(&sb, "Tokens used:       %d\n", m.TokensUsed)
	}

	improvements := r.Improvements()
	if len(improvements) > 0 {
		sb.WriteString("\nSuggested improvements:\n")
		for _, imp := range improvements {
			fmt.Fprintf(&sb, "  - %s\n", imp)
		}
	}
	return sb.String()
}

// exportEnvelope is the JSON shape for learning export/import.
type exportEnvelope struct {
	Learnings []*models.LearningEntry `json:"learnings"`
	Metrics   models.AgentMetrics     `json:"metrics"`
}

// Export serializes entries and metrics as {"learnings": [...], "metrics": {...}}.
func (r *Registry) Export() ([]byte, error) {
	r.mu.Lock()
	env := exportEnvelope{Learnings: r.entries, Metrics: r.metrics}
	data, err := json.MarshalIndent(env, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("marshal learnings: %w", err)
	}
	return data, nil
}

// Import replaces the registry contents from an export envelope and reports
// how many entries were imported. Malformed payloads are silently discarded.
func (r *Registry) Import(data []byte) int {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	n := 0
	for _, e := range env.Learnings {
		if e == nil || e.ID == "" {
			continue
		}
		c := *e
		r.entries = append(r.entries, &c)
		n++
	}
	r.metrics = env.Metrics
	r.completionSamples = 0
	return n
}

// Load replaces the registry contents with an archived snapshot.
func (r *Registry) Load(entries []*models.LearningEntry, metrics models.AgentMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	for _, e := range entries {
		if e == nil || e.ID == "" {
			continue
		}
		c := *e
		r.entries = append(r.entries, &c)
	}
	r.metrics = metrics
	r.completionSamples = 0
}

// queryWords splits a query into lowercase words, dropping duplicates.
func queryWords(q string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// wordSet returns the set of whole words in a text, lowercased.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
