package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded filing tracked through the indexing pipeline.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	StoragePath  string         `json:"storage_path"`
	Status       DocumentStatus `json:"status"`
	SectionCount int            `json:"section_count"`
	ChunkCount   int            `json:"chunk_count"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Page is the extracted text of one page of a filing, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Subsection is a titled span inside a section.
type Subsection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Section is one "ITEM N." block of a filing as produced by extraction.
type Section struct {
	Section         string           `json:"section"`
	Text            string           `json:"text"`
	PageRange       [2]int           `json:"page_range"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
	Subsections     []Subsection     `json:"subsections,omitempty"`
}
