package types

import "unicode/utf8"

// Candidate is a discovered (title, URL) pair that has not yet been extracted.
type Candidate struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Extraction is the best-effort result of the multi-method extractor.
// The zero value means no content was found.
type Extraction struct {
	Text   string
	Method string
}

// Score is the quality proxy: the length of Text in characters.
func (e Extraction) Score() int {
	return utf8.RuneCountInString(e.Text)
}

// Empty reports whether the extraction carries no content.
func (e Extraction) Empty() bool { return e.Text == "" }
