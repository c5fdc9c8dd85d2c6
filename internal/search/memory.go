package search

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	snippetRadius = 60
	nameBoost     = 3
	wordsAnalyzer = "words"
)

// Memory is an embedded bleve index held entirely in RAM. It backs keyword
// search whenever Meilisearch is not configured or unhealthy.
type Memory struct {
	index bleve.Index
}

func NewMemory() *Memory {
	m, err := memoryMapping()
	if err != nil {
		panic(fmt.Sprintf("search: memory mapping: %v", err))
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		panic(fmt.Sprintf("search: memory index: %v", err))
	}
	return &Memory{index: idx}
}

// memoryMapping indexes pre-split words for name and content and stores the
// originals for display. type is matched exactly. No stop words are removed.
func memoryMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(wordsAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = wordsAnalyzer
	text.Store = false
	text.IncludeInAll = false

	keyword := bleve.NewKeywordFieldMapping()
	keyword.IncludeInAll = false

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("type", keyword)
	doc.AddFieldMappingsAt("title", stored)
	doc.AddFieldMappingsAt("body", stored)

	m.DefaultMapping = doc
	return m, nil
}

func (m *Memory) Healthy() bool {
	return true
}

func (m *Memory) IndexItems(items []ItemRecord) error {
	batch := m.index.NewBatch()
	for _, item := range items {
		body := plainText(item.Content)
		err := batch.Index(item.ID, map[string]interface{}{
			"name":    strings.Join(tokenize(item.Name), " "),
			"content": strings.Join(tokenize(body), " "),
			"type":    item.Type,
			"title":   item.Name,
			"body":    body,
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", item.ID, err)
		}
	}
	return m.index.Batch(batch)
}

func (m *Memory) DeleteItems(ids []string) error {
	batch := m.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return m.index.Batch(batch)
}

// Prune deletes every record whose id is not in keep.
func (m *Memory) Prune(keep map[string]bool) error {
	size := m.Len()
	if size == 0 {
		return nil
	}
	res, err := m.index.Search(bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), size, 0, false))
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	var stale []string
	for _, hit := range res.Hits {
		if !keep[hit.ID] {
			stale = append(stale, hit.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return m.DeleteItems(stale)
}

func (m *Memory) Len() int {
	n, err := m.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Search requires every query word in name or content, ignoring case.
// Name matches weigh more.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	terms := tokenize(q.Text)
	size := m.Len()
	if len(terms) == 0 || size == 0 {
		return nil, 0, nil
	}

	must := make([]query.Query, 0, len(terms)+1)
	for _, term := range terms {
		inName := bleve.NewMatchQuery(term)
		inName.SetField("name")
		inName.SetBoost(nameBoost)
		inContent := bleve.NewMatchQuery(term)
		inContent.SetField("content")
		must = append(must, bleve.NewDisjunctionQuery(inName, inContent))
	}
	if q.FilterType != "" {
		typeQuery := bleve.NewTermQuery(q.FilterType)
		typeQuery.SetField("type")
		must = append(must, typeQuery)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(must...), size, 0, false)
	req.Fields = []string{"title", "type", "body"}
	res, err := m.index.Search(req)
	if err != nil {
		return nil, 0, fmt.Errorf("memory search: %w", err)
	}

	type scored struct {
		result Result
		score  float64
	}
	hits := make([]scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if q.Allow != nil && !q.Allow(hit.ID) {
			continue
		}
		hits = append(hits, scored{
			result: Result{
				ID:      hit.ID,
				Name:    fieldString(hit.Fields, "title"),
				Type:    fieldString(hit.Fields, "type"),
				Snippet: snippet(fieldString(hit.Fields, "body"), terms[0]),
			},
			score: hit.Score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].result.Name < hits[j].result.Name
	})

	total := len(hits)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results, total, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

// tokenize lowercases rune by rune, so a word keeps its rune count.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.Map(unicode.ToLower, text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// plainText strips markup so spreadsheet tables search like prose.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// snippet windows content around the first case-insensitive match of term.
// Offsets are in runes of content itself.
func snippet(content, term string) string {
	runes := []rune(content)
	idx := indexFold(runes, []rune(term))
	if idx < 0 {
		if len(runes) > 2*snippetRadius {
			return string(runes[:2*snippetRadius]) + "..."
		}
		return content
	}

	start, prefix := idx-snippetRadius, "..."
	if start <= 0 {
		start, prefix = 0, ""
	}
	end, suffix := idx+len([]rune(term))+snippetRadius, "..."
	if end >= len(runes) {
		end, suffix = len(runes), ""
	}
	return prefix + string(runes[start:end]) + suffix
}

func indexFold(s, sub []rune) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j, r := range sub {
			if unicode.ToLower(s[i+j]) != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
