package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/telemetry"
)

// Source labels returned for UI attribution. The set carries both the pools
// that contributed content and the retrieval strategies that produced it.
const (
	SourceLabelKnowledge  = "knowledge"
	SourceLabelTranscript = "transcript"
	SourceLabelRecords    = "records"
	SourceLabelSemantic   = "semantic"
	SourceLabelKeyword    = "keyword"
)

// ContextBuilderConfig controls retrieval and rendering.
type ContextBuilderConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for vector hits.
	SimilarityThreshold float32
	// SearchLimit bounds results per retrieval call.
	SearchLimit int
	// SnippetMaxChars caps each rendered chunk's content.
	SnippetMaxChars int
	// ContextMaxChars caps the assembled text block.
	ContextMaxChars int
	// RecordTopN bounds each live-record list in the snapshot.
	RecordTopN int
	// CallTimeout applies to each external sub-call; the caller's context
	// should carry a slightly larger deadline for the whole request.
	CallTimeout time.Duration
}

// DefaultContextBuilderConfig returns the default builder configuration.
func DefaultContextBuilderConfig() ContextBuilderConfig {
	return ContextBuilderConfig{
		SimilarityThreshold: 0.5,
		SearchLimit:         8,
		SnippetMaxChars:     220,
		ContextMaxChars:     6000,
		RecordTopN:          5,
		CallTimeout:         10 * time.Second,
	}
}

// ContextResult is the assembled, source-attributed context block.
type ContextResult struct {
	Text    string
	Sources []string
}

// ContextBuilder assembles a bounded, source-attributed context block for an
// LLM prompt from hybrid retrieval over the knowledge and transcript pools
// plus a snapshot of live operational records.
type ContextBuilder struct {
	store     SearchStore
	records   RecordStore
	embedding EmbeddingClient
	cfg       ContextBuilderConfig
}

// NewContextBuilder creates a ContextBuilder with default configuration.
func NewContextBuilder(store SearchStore, records RecordStore, embedding EmbeddingClient) *ContextBuilder {
	return NewContextBuilderWithConfig(store, records, embedding, DefaultContextBuilderConfig())
}

// NewContextBuilderWithConfig creates a ContextBuilder with explicit configuration.
func NewContextBuilderWithConfig(store SearchStore, records RecordStore, embedding EmbeddingClient, cfg ContextBuilderConfig) *ContextBuilder {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultContextBuilderConfig().SearchLimit
	}
	if cfg.SnippetMaxChars <= 0 {
		cfg.SnippetMaxChars = DefaultContextBuilderConfig().SnippetMaxChars
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultContextBuilderConfig().CallTimeout
	}
	return &ContextBuilder{
		store:     store,
		records:   records,
		embedding: embedding,
		cfg:       cfg,
	}
}

// poolResults holds both retrieval strategies' hits for one pool.
type poolResults struct {
	vector  []*SearchResult
	keyword []*SearchResult
}

// BuildContext runs vector and keyword search over both pools concurrently,
// fuses each pool's results, and renders a bounded text block with labeled
// sections plus the set of sources that actually contributed.
//
// Degradation ladder: if the query embedding fails the builder proceeds
// keyword-only; individual store failures drop only the affected call; when
// every retrieval path fails the result is an empty context, not an error,
// so the caller can still attempt an ungrounded answer.
func (b *ContextBuilder) BuildContext(ctx context.Context, userQuery string) (*ContextResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ContextBuilder.BuildContext", telemetry.SpanAttributes{
		Operation: "build_context",
	})
	defer span.End()

	query := strings.TrimSpace(userQuery)
	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}

	embedding := b.embedQuery(ctx, query)

	pools := map[domain.SourceType]*poolResults{
		domain.SourceKnowledge:  {},
		domain.SourceTranscript: {},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var snapshot *domain.RecordSnapshot

	for _, sourceType := range []domain.SourceType{domain.SourceKnowledge, domain.SourceTranscript} {
		opts := SearchOptions{
			Threshold: b.cfg.SimilarityThreshold,
			Limit:     b.cfg.SearchLimit,
			Source:    sourceType,
		}

		if embedding != nil {
			wg.Add(1)
			go func(st domain.SourceType, opts SearchOptions) {
				defer wg.Done()
				results := b.searchVector(ctx, embedding, opts)
				mu.Lock()
				pools[st].vector = results
				mu.Unlock()
			}(sourceType, opts)
		}

		wg.Add(1)
		go func(st domain.SourceType, opts SearchOptions) {
			defer wg.Done()
			results := b.searchKeyword(ctx, query, opts)
			mu.Lock()
			pools[st].keyword = results
			mu.Unlock()
		}(sourceType, opts)
	}

	if b.records != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := b.fetchSnapshot(ctx)
			mu.Lock()
			snapshot = snap
			mu.Unlock()
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fuse per pool, then concatenate with knowledge-pool results preceding
	// transcript-pool results. Pool provenance stays visible for attribution.
	knowledge := pools[domain.SourceKnowledge]
	transcript := pools[domain.SourceTranscript]
	knowledgeEntries := FuseResults(knowledge.vector, knowledge.keyword)
	transcriptEntries := FuseResults(transcript.vector, transcript.keyword)

	sources := newSourceSet()
	if len(knowledge.vector)+len(transcript.vector) > 0 {
		sources.add(SourceLabelSemantic)
	}
	if len(knowledge.keyword)+len(transcript.keyword) > 0 {
		sources.add(SourceLabelKeyword)
	}

	var sections []string
	budget := b.cfg.ContextMaxChars

	if section := b.renderPool("Knowledge Base", knowledgeEntries, &budget); section != "" {
		sections = append(sections, section)
		sources.add(SourceLabelKnowledge)
	}
	if section := b.renderPool("Meeting Transcripts", transcriptEntries, &budget); section != "" {
		sections = append(sections, section)
		sources.add(SourceLabelTranscript)
	}
	if section := renderSnapshot(snapshot); section != "" {
		sections = append(sections, section)
		sources.add(SourceLabelRecords)
	}

	return &ContextResult{
		Text:    strings.Join(sections, "\n\n"),
		Sources: sources.sorted(),
	}, nil
}

// embedQuery computes the query embedding, returning nil when semantic
// search must be skipped. Loss of the embedding provider degrades the
// request to keyword-only rather than failing it.
func (b *ContextBuilder) embedQuery(ctx context.Context, query string) []float32 {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	embedding, err := b.embedding.GenerateEmbedding(callCtx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("context: query embedding failed, degrading to keyword-only: %v", err)
		telemetry.AddBreadcrumb(ctx, "context", "embedding unavailable, keyword-only search")
		return nil
	}
	return embedding
}

func (b *ContextBuilder) searchVector(ctx context.Context, embedding []float32, opts SearchOptions) []*SearchResult {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	results, err := b.store.SearchSimilar(callCtx, embedding, opts)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("context: vector search failed for %s pool: %v", opts.Source, err)
		}
		return nil
	}
	return results
}

func (b *ContextBuilder) searchKeyword(ctx context.Context, query string, opts SearchOptions) []*SearchResult {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	results, err := b.store.SearchKeyword(callCtx, query, opts)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("context: keyword search failed for %s pool: %v", opts.Source, err)
		}
		return nil
	}
	return results
}

func (b *ContextBuilder) fetchSnapshot(ctx context.Context) *domain.RecordSnapshot {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	snapshot, err := b.records.Snapshot(callCtx, b.cfg.RecordTopN)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("context: record snapshot failed: %v", err)
		}
		return nil
	}
	return snapshot
}

// renderPool renders one pool's fused entries under a section header,
// consuming the shared character budget. Fusion scores are never truncated;
// only the rendered snippet is capped.
func (b *ContextBuilder) renderPool(header string, entries []*FusionEntry, budget *int) string {
	if len(entries) == 0 || *budget <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## " + header + "\n")
	wrote := false
	for _, entry := range entries {
		line := renderEntry(entry.Result, b.cfg.SnippetMaxChars)
		if sb.Len()+len(line) > *budget {
			break
		}
		sb.WriteString(line)
		wrote = true
	}
	if !wrote {
		return ""
	}

	section := strings.TrimRight(sb.String(), "\n")
	*budget -= len(section)
	return section
}

func renderEntry(r *SearchResult, snippetMax int) string {
	var sb strings.Builder
	if r.Title != "" {
		sb.WriteString("[" + r.Title + "]\n")
	}
	sb.WriteString(makeSnippet(r.Content, snippetMax))
	sb.WriteString("\n\n")
	return sb.String()
}

func renderSnapshot(snapshot *domain.RecordSnapshot) string {
	if snapshot.Empty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Current Business Snapshot\n")

	if len(snapshot.Priorities) > 0 {
		sb.WriteString("Priorities:\n")
		for _, p := range snapshot.Priorities {
			sb.WriteString(fmt.Sprintf("- %s (%s, %s)\n", p.Title, p.Owner, p.Status))
		}
	}
	if len(snapshot.Issues) > 0 {
		sb.WriteString("Open Issues:\n")
		for _, i := range snapshot.Issues {
			sb.WriteString(fmt.Sprintf("- %s (severity %d)\n", i.Title, i.Severity))
		}
	}
	if len(snapshot.ActionItems) > 0 {
		sb.WriteString("Pending Action Items:\n")
		for _, a := range snapshot.ActionItems {
			line := fmt.Sprintf("- %s (%s)", a.Description, a.Owner)
			if a.DueDate != nil {
				line += " due " + a.DueDate.Format("2006-01-02")
			}
			sb.WriteString(line + "\n")
		}
	}
	if len(snapshot.Metrics) > 0 {
		sb.WriteString("Latest Metrics:\n")
		for _, m := range snapshot.Metrics {
			sb.WriteString(fmt.Sprintf("- %s: %g %s\n", m.Name, m.Value, m.Unit))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func makeSnippet(content string, maxChars int) string {
	clean := strings.Join(strings.Fields(content), " ")
	runes := []rune(clean)
	if maxChars <= 3 || len(runes) <= maxChars {
		return clean
	}
	// Cut on a rune boundary so multibyte content stays valid UTF-8.
	return string(runes[:maxChars-3]) + "..."
}

type sourceSet map[string]struct{}

func newSourceSet() sourceSet {
	return make(sourceSet)
}

func (s sourceSet) add(label string) {
	s[label] = struct{}{}
}

func (s sourceSet) sorted() []string {
	out := make([]string, 0, len(s))
	for label := range s {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
