package analyzer

import (
	"math"
	"sort"
	"strings"
)

// SchemaBlockResult is the validation outcome for one structured-data block
type SchemaBlockResult struct {
	Format        string   `json:"format"`
	Types         []string `json:"types"`
	Valid         bool     `json:"valid"`
	Completeness  float64  `json:"completeness"`
	MissingFields []string `json:"missingFields,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// SchemaFinding summarises every structured-data block on the page
type SchemaFinding struct {
	Types               []string            `json:"types"`
	Blocks              []SchemaBlockResult `json:"blocks"`
	ValidBlocks         int                 `json:"validBlocks"`
	AverageCompleteness float64             `json:"averageCompleteness"`
	HasFAQPage          bool                `json:"hasFaqPage"`
	Score               int                 `json:"score"`
}

// analyzeSchema validates each block against the required-field table
func analyzeSchema(doc *ContentDocument, cfg SchemaConfig) SchemaFinding {
	f := SchemaFinding{
		Types:  []string{},
		Blocks: []SchemaBlockResult{},
	}
	if len(doc.Schema) == 0 {
		return f
	}

	seen := make(map[string]bool)
	known := make(map[string]bool)
	totalCompleteness := 0.0
	for _, block := range doc.Schema {
		res := validateBlock(block, cfg)
		f.Blocks = append(f.Blocks, res)
		totalCompleteness += res.Completeness
		if res.Valid {
			f.ValidBlocks++
		}
		for _, t := range res.Types {
			if !seen[t] {
				seen[t] = true
				f.Types = append(f.Types, t)
			}
			if _, ok := cfg.RequiredFields[t]; ok && block.Err == nil {
				known[t] = true
			}
			if t == "FAQPage" && res.Valid {
				f.HasFAQPage = true
			}
		}
	}

	count := float64(len(doc.Schema))
	f.AverageCompleteness = round2(totalCompleteness / count)

	score := f.AverageCompleteness*cfg.CompletenessPoints +
		float64(f.ValidBlocks)/count*cfg.ValidityPoints +
		perBlock(f.ValidBlocks, cfg.CountBlocks)*cfg.CountPoints +
		capRatio(len(known), cfg.DiversityCap)*cfg.DiversityPoints
	f.Score = clampScore(score)
	return f
}

// perBlock scales n against the number of blocks worth the full points. It
// keeps growing past that so every further valid block still counts.
func perBlock(n, blocks int) float64 {
	if blocks <= 0 {
		return 0
	}
	return float64(n) / float64(blocks)
}

func capRatio(n, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Min(float64(n), float64(limit)) / float64(limit)
}

// validateBlock scores one block. Completeness averages over its entities;
// a block is valid only when it parsed and clears the completeness threshold.
func validateBlock(block SchemaBlock, cfg SchemaConfig) SchemaBlockResult {
	res := SchemaBlockResult{Format: block.Format, Types: []string{}}
	if block.Err != nil {
		res.Error = block.Err.Error()
		return res
	}

	missing := make(map[string]bool)
	total := 0.0
	for _, ent := range block.Entities {
		res.Types = append(res.Types, ent.Types...)
		required := requiredFields(ent.Types, cfg)
		if len(required) == 0 {
			total++
			continue
		}
		present := 0
		for _, field := range required {
			if hasField(ent.Fields, field) {
				present++
			} else {
				missing[field] = true
			}
		}
		total += float64(present) / float64(len(required))
	}
	if len(block.Entities) > 0 {
		res.Completeness = round2(total / float64(len(block.Entities)))
	}
	for field := range missing {
		res.MissingFields = append(res.MissingFields, field)
	}
	sort.Strings(res.MissingFields)
	res.Valid = res.Completeness >= cfg.ValidCompleteness
	return res
}

// requiredFields picks the first declared type present in the table
func requiredFields(types []string, cfg SchemaConfig) []string {
	for _, t := range types {
		if fields, ok := cfg.RequiredFields[t]; ok {
			return fields
		}
	}
	return cfg.DefaultRequired
}

func hasField(fields map[string]interface{}, name string) bool {
	v, ok := fields[name]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
