package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/IshaanNene/finscrape/internal/filter"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Drop reasons set by the built-in stages. Filter rejections use the
// filter's own reasons.
const (
	ReasonNoContent = "no_content"
	ReasonTooShort  = "extraction_too_short"
	ReasonDuplicate = "duplicate"
)

// Extractor produces article text for a URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) types.Extraction
}

// Evaluator scores an article for relevance.
type Evaluator interface {
	Evaluate(title, content string) filter.Verdict
}

// Persister stores an accepted article unless it is a duplicate.
type Persister interface {
	TryStore(ctx context.Context, title, content, url string, target types.Target, meta types.Metadata) (bool, error)
}

// --- Extraction ---

// ExtractStage fills in the article text.
type ExtractStage struct {
	Extractor Extractor
}

func (s *ExtractStage) Name() string { return "extract" }

func (s *ExtractStage) Process(ctx context.Context, a *Article) (*Article, error) {
	a.Extraction = s.Extractor.Extract(ctx, a.Candidate.URL)
	if a.Extraction.Empty() {
		a.DropReason = ReasonNoContent
		return nil, nil
	}
	return a, nil
}

// MinLengthStage drops extractions shorter than Min characters.
type MinLengthStage struct {
	Min int
}

func (s *MinLengthStage) Name() string { return "min_length" }

func (s *MinLengthStage) Process(_ context.Context, a *Article) (*Article, error) {
	if a.Extraction.Score() < s.Min {
		a.DropReason = ReasonTooShort
		return nil, nil
	}
	return a, nil
}

// --- Normalization ---

// NormalizeStage collapses whitespace in the title and trims the content.
// Titles arrive already entity-decoded from the parser.
type NormalizeStage struct{}

func (s *NormalizeStage) Name() string { return "normalize" }

func (s *NormalizeStage) Process(_ context.Context, a *Article) (*Article, error) {
	a.Candidate.Title = strings.Join(strings.Fields(a.Candidate.Title), " ")
	a.Extraction.Text = strings.TrimSpace(a.Extraction.Text)
	return a, nil
}

// --- Relevance ---

// FilterStage scores the article and drops rejected ones. Accepted articles
// get their record metadata filled in.
type FilterStage struct {
	Filter Evaluator
	Now    func() time.Time
}

func (s *FilterStage) Name() string { return "filter" }

func (s *FilterStage) Process(_ context.Context, a *Article) (*Article, error) {
	v := s.Filter.Evaluate(a.Title(), a.Content())
	a.Verdict = v
	if !v.Accepted {
		a.DropReason = v.Reason
		return nil, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	kind, reliability := filter.ClassifySource(a.Target.Name)
	a.Metadata = types.Metadata{
		RelevanceScore:    v.Relevance,
		TitleScore:        v.Title,
		QualityScore:      v.Quality,
		FinalScore:        v.Final,
		KeywordMatches:    v.KeywordMatches,
		ExtractionMethod:  a.Extraction.Method,
		ContentLength:     a.Extraction.Score(),
		ContentType:       a.Target.ContentType,
		SourceType:        kind,
		SourceReliability: reliability,
		ProcessedAt:       now(),
	}
	return a, nil
}

// --- Persistence ---

// StoreStage persists the article through the dedup gate.
type StoreStage struct {
	Gate Persister
}

func (s *StoreStage) Name() string { return "store" }

func (s *StoreStage) Process(ctx context.Context, a *Article) (*Article, error) {
	stored, err := s.Gate.TryStore(ctx, a.Title(), a.Content(), a.Candidate.URL, a.Target, a.Metadata)
	if err != nil {
		return nil, err
	}
	if !stored {
		a.DropReason = ReasonDuplicate
		return nil, nil
	}
	a.Stored = true
	return a, nil
}
