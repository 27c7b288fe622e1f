package guardrail

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/sentinel-gateway/pkg/embedded"
)

type disclaimerRegion struct {
	Regulator       string            `json:"regulator"`
	General         string            `json:"general"`
	AssetParagraphs map[string]string `json:"asset_paragraphs"`
}

type disclaimerTable struct {
	Regions           map[string]disclaimerRegion `json:"regions"`
	DisclaimerPhrases []string                     `json:"disclaimer_phrases"`
}

// DisclaimerGenerator looks up regionally appropriate disclaimer text from
// the embedded table keyed by (region, asset class).
type DisclaimerGenerator struct {
	table disclaimerTable
}

// NewDisclaimerGenerator loads the disclaimer table from the embedded data
// file. The table is pure data: the guardrail never imports the narrative
// or cache packages to build a disclaimer.
func NewDisclaimerGenerator() (*DisclaimerGenerator, error) {
	raw, err := embedded.Files.ReadFile("disclaimers.json")
	if err != nil {
		return nil, fmt.Errorf("guardrail: reading disclaimer table: %w", err)
	}

	var table disclaimerTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("guardrail: parsing disclaimer table: %w", err)
	}

	return &DisclaimerGenerator{table: table}, nil
}

func (g *DisclaimerGenerator) regionEntry(region string) disclaimerRegion {
	if r, ok := g.table.Regions[strings.ToLower(region)]; ok {
		return r
	}
	return g.table.Regions["global"]
}

// Generate builds a single-asset disclaimer for (region, assetClass).
func (g *DisclaimerGenerator) Generate(region, assetClass string) string {
	r := g.regionEntry(region)
	paragraph, ok := r.AssetParagraphs[strings.ToLower(assetClass)]
	if !ok {
		paragraph = g.table.Regions["global"].AssetParagraphs[strings.ToLower(assetClass)]
	}
	if paragraph == "" {
		return r.General
	}
	return r.General + " " + paragraph
}

// GenerateMultiAsset concatenates the general paragraph once with each
// unique asset-specific fragment, in the order the classes are given.
func (g *DisclaimerGenerator) GenerateMultiAsset(region string, assetClasses []string) string {
	r := g.regionEntry(region)
	parts := []string{r.General}
	seen := make(map[string]bool)

	for _, ac := range assetClasses {
		key := strings.ToLower(ac)
		if seen[key] {
			continue
		}
		seen[key] = true
		if p, ok := r.AssetParagraphs[key]; ok && p != "" {
			parts = append(parts, p)
		}
	}

	return strings.Join(parts, " ")
}

// hasDisclaimer reports whether text already contains a recognizable
// disclaimer phrase in any supported language (mixed-content tolerant).
func (g *DisclaimerGenerator) hasDisclaimer(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range g.table.DisclaimerPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
