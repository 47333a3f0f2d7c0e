package models

import (
	"encoding/json"
	"strings"
)

// Origin identifies the collection channel that produced a candidate image.
// It is attached when the candidate is created and survives deduplication,
// so the final response can report provenance without guessing from URLs.
type Origin string

const (
	OriginCandidate  Origin = "candidate"
	OriginSite       Origin = "site"
	OriginPerplexity Origin = "perplexity"
)

// Candidate is a raw discovered image URL plus its discovery channel.
type Candidate struct {
	URL    string
	Origin Origin
}

// ImageList accepts either a JSON array of strings or a single comma-joined
// string ("a.jpg, b.jpg") and normalizes both into a slice.
type ImageList []string

func (l *ImageList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

// ImageRequest is the request body for finding an image.
type ImageRequest struct {
	Title     string    `json:"title" binding:"required"`
	Research  string    `json:"research" binding:"required"`
	SourceURL string    `json:"source_url,omitempty"`
	Images    ImageList `json:"images,omitempty"`
}

// ImageEvaluation is the vision model's structured verdict on one candidate.
type ImageEvaluation struct {
	ImageURL             string `json:"image_url"`
	RelevanceScore       int    `json:"relevance_score"`
	TemporalRelevance    string `json:"temporal_relevance"` // current / outdated / not_applicable
	WatermarkSeverity    string `json:"watermark_severity"` // none / minimal / heavy
	AdPresence           string `json:"ad_presence"`        // none / minimal / intrusive
	ContentQuality       string `json:"content_quality"`    // high / medium / low
	IsRelevantToEvent    bool   `json:"is_relevant_to_event"`
	ContainsOutdatedInfo bool   `json:"contains_outdated_info"`
	Reasoning            string `json:"reasoning"`
}

// ProcessedImage is the outcome of one successful processing attempt. Either
// Data carries re-encoded bytes (NeedsProcessing true) or the original URL is
// compliant as-is and passes through untouched.
type ProcessedImage struct {
	Data            []byte
	OriginalURL     string
	Format          string
	Dimensions      string
	SizeKB          int
	NeedsProcessing bool
}

// ImageResponse is the terminal artifact of a request: exactly one per
// request, written to cache and returned to the caller.
type ImageResponse struct {
	ImageURL          string `json:"image_url"`
	OriginalURL       string `json:"original_url"`
	ToolUsed          string `json:"tool_used"`
	ImageDescription  string `json:"image_description"`
	Format            string `json:"format"`
	Dimensions        string `json:"dimensions"`
	QualityScore      int    `json:"quality_score"`
	TemporalRelevance string `json:"temporal_relevance"`
	WatermarkStatus   string `json:"watermark_status"`
	Cached            bool   `json:"cached"`
	Found             bool   `json:"found"`
}
