package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/chikai/internal/models"
)

const (
	titleBoost = 3.0
	fuzziness  = 1
)

var textFields = []string{"title", "venue", "category", "description"}

// document is the indexed shape of an event.
type document struct {
	Title       string `json:"title"`
	Venue       string `json:"venue"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// BleveCatalog implements Catalog using Bleve.
type BleveCatalog struct {
	index bleve.Index
}

// NewBleveCatalog creates or opens a Bleve index at path. An empty path
// creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a re-index.
func NewBleveCatalog(path string) (*BleveCatalog, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps venue names matchable verbatim.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("event", docMapping)
	im.DefaultType = "event"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveCatalog{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveCatalog{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveCatalog{index: index}, nil
}

// Index adds or replaces an event.
func (b *BleveCatalog) Index(ctx context.Context, event *models.Event) error {
	return b.index.Index(event.ID, document{
		Title:       event.Title,
		Venue:       event.Venue,
		Category:    event.Category,
		Description: event.Description,
	})
}

// Search matches query against every text field with title matches boosted.
// When the exact search finds nothing, it retries with fuzzy term matching.
func (b *BleveCatalog) Search(ctx context.Context, query string, limit int) ([]*Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []*Hit{}, nil
	}
	hits, err := b.run(ctx, matchQuery(query), limit, false)
	if err != nil || len(hits) > 0 {
		return hits, err
	}
	return b.run(ctx, fuzzyQuery(query), limit, true)
}

func (b *BleveCatalog) run(ctx context.Context, q blevequery.Query, limit int, fuzzy bool) ([]*Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Hit, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &Hit{ID: hit.ID, Score: hit.Score, Fuzzy: fuzzy}
	}
	return out, nil
}

func matchQuery(query string) blevequery.Query {
	qs := make([]blevequery.Query, 0, len(textFields))
	for _, f := range textFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		if f == "title" {
			mq.SetBoost(titleBoost)
		}
		qs = append(qs, mq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// fuzzyQuery ORs a FuzzyQuery per lowercase term and field.
func fuzzyQuery(query string) blevequery.Query {
	var qs []blevequery.Query
	for _, term := range strings.Fields(strings.ToLower(query)) {
		for _, f := range textFields {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(f)
			if f == "title" {
				fq.SetBoost(titleBoost)
			}
			qs = append(qs, fq)
		}
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// Delete removes an event from the index.
func (b *BleveCatalog) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of indexed events.
func (b *BleveCatalog) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveCatalog) Close() error {
	return b.index.Close()
}
