// Package pipeline runs a discovered candidate through extraction,
// filtering and persistence as an ordered chain of stages.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/finscrape/internal/filter"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Article is the unit of work flowing through the pipeline.
type Article struct {
	Target     types.Target
	Candidate  types.Candidate
	Extraction types.Extraction
	Verdict    filter.Verdict
	Metadata   types.Metadata
	Stored     bool

	// DropReason is set by the stage that dropped the article.
	DropReason string
}

// Title returns the candidate title.
func (a *Article) Title() string { return a.Candidate.Title }

// Content returns the extracted text.
func (a *Article) Content() string { return a.Extraction.Text }

// Stage processes an article and returns it for the next stage.
// Return nil to drop the article.
type Stage interface {
	// Name returns the stage identifier.
	Name() string

	// Process handles an article. Return nil to drop it.
	Process(ctx context.Context, a *Article) (*Article, error)
}

// Pipeline chains stages together.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New creates an empty Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use appends a stage to the chain.
func (p *Pipeline) Use(s Stage) *Pipeline {
	p.stages = append(p.stages, s)
	p.logger.Debug("stage added", "name", s.Name(), "position", len(p.stages))
	return p
}

// Process runs the article through every stage in order. A dropped article
// yields (nil, nil) with a.DropReason set.
func (p *Pipeline) Process(ctx context.Context, a *Article) (*Article, error) {
	current := a

	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.Process(ctx, current)
		if err != nil {
			return nil, &types.StageError{
				Stage: s.Name(),
				URL:   a.Candidate.URL,
				Err:   err,
			}
		}
		if result == nil {
			if a.DropReason == "" {
				a.DropReason = s.Name()
			}
			p.logger.Debug("article dropped", "stage", s.Name(), "url", a.Candidate.URL, "reason", a.DropReason)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
