package types

import "time"

// Metadata is stored alongside each record.
type Metadata struct {
	RelevanceScore    int            `json:"relevance_score" bson:"relevance_score"`
	TitleScore        int            `json:"title_score" bson:"title_score"`
	QualityScore      int            `json:"quality_score" bson:"quality_score"`
	FinalScore        int            `json:"final_score" bson:"final_score"`
	KeywordMatches    map[string]int `json:"keyword_matches,omitempty" bson:"keyword_matches,omitempty"`
	ExtractionMethod  string         `json:"extraction_method" bson:"extraction_method"`
	ContentLength     int            `json:"content_length" bson:"content_length"`
	ContentType       string         `json:"content_type,omitempty" bson:"content_type,omitempty"`
	SourceType        string         `json:"source_type,omitempty" bson:"source_type,omitempty"`
	SourceReliability string         `json:"source_reliability,omitempty" bson:"source_reliability,omitempty"`
	ProcessedAt       time.Time      `json:"processed_at" bson:"processed_at"`
}

// Record is a persisted article. Fingerprint is unique across all records.
type Record struct {
	ID          string    `json:"id" bson:"_id"`
	TargetID    string    `json:"target_id" bson:"target_id"`
	TargetName  string    `json:"target_name" bson:"target_name"`
	Title       string    `json:"title" bson:"title"`
	Content     string    `json:"content" bson:"content"`
	URL         string    `json:"url" bson:"url"`
	Fingerprint string    `json:"content_hash" bson:"content_hash"`
	ScrapedAt   time.Time `json:"scraped_at" bson:"scraped_at"`
	Metadata    Metadata  `json:"metadata" bson:"metadata"`

	// Consumed is set once a downstream generator has picked the record up.
	Consumed bool `json:"consumed" bson:"consumed"`
}
