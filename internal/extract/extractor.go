package extract

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
)

// Extractor pulls catalog metadata and a cover image out of an uploaded file.
// Strategies run in order and the first success wins; the final fallback
// never fails, so Extract always produces usable metadata.
type Extractor struct {
	strategies []strategy
}

type strategy struct {
	name string
	run  func(ctx context.Context, data []byte, filename string) (*domain.ExtractedMetadata, error)
}

func NewExtractor() *Extractor {
	e := &Extractor{}
	e.strategies = []strategy{
		{name: "pdf", run: e.extractPDF},
		{name: "basic", run: e.extractBasic},
	}
	return e
}

// Extract runs the strategy chain for the uploaded file.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*domain.ExtractedMetadata, error) {
	logger := util.LoggerFromContext(ctx)
	for _, s := range e.strategies {
		meta, err := s.run(ctx, data, filename)
		if err != nil {
			logger.Warn("metadata_extract_fallback",
				"strategy", s.name,
				"filename", filename,
				"error", err.Error(),
			)
			continue
		}
		return meta, nil
	}
	// Unreachable: the basic strategy cannot fail.
	return e.basicInfo(filename), nil
}

// extractBasic derives metadata from the filename alone. It never fails.
func (e *Extractor) extractBasic(_ context.Context, _ []byte, filename string) (*domain.ExtractedMetadata, error) {
	return e.basicInfo(filename), nil
}

func (e *Extractor) basicInfo(filename string) *domain.ExtractedMetadata {
	return &domain.ExtractedMetadata{
		Title:         titleFromFilename(filename),
		PublishedYear: time.Now().Year(),
	}
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	title := strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if title == "" {
		return "Untitled"
	}
	return title
}
