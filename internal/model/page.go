package model

type ExtractionMethod string

const (
	ExtractionNative ExtractionMethod = "native"
	ExtractionOCR    ExtractionMethod = "ocr"
	ExtractionNone   ExtractionMethod = "none"
)

// Page is one page of a document. Number is 1-based.
type Page struct {
	Number int              `json:"number"`
	Text   string           `json:"text"`
	Method ExtractionMethod `json:"method"`
}

// Chunk is a slice of one page's text. Chunks never span pages.
type Chunk struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
	Index      int    `json:"index"`
}

// SearchResult is one retrieved passage, ordered by descending Score.
type SearchResult struct {
	Text       string  `json:"text"`
	PageNumber int     `json:"page_number"`
	Score      float32 `json:"score"`
}
