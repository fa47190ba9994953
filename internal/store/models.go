package store

import "time"

type Document struct {
	ID         string    `json:"id"` // UUID
	Filename   string    `json:"filename"`
	FilePath   string    `json:"-"` // Absolute upload path, internal
	FileSize   int64     `json:"file_size"`
	TotalPages int       `json:"total_pages"`
	ImageCount int       `json:"image_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Page struct {
	ID         string `json:"id"` // UUID
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"` // 1-based
	Text       string `json:"text"`
}

// ImageRef points at an image file extracted from a document page. A page may
// own zero or more images; Index preserves extraction order.
type ImageRef struct {
	ID         string `json:"id"` // UUID
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"pageNumber"`
	Path       string `json:"imagePath"`
	Index      int    `json:"-"`
}

type Session struct {
	ID        string    `json:"id"` // UUID
	Title     *string   `json:"title"` // Nullable
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageRef is a (document, page) pair an assistant answer was grounded in.
type PageRef struct {
	DocumentID string `json:"pdfId"`
	PageNumber int    `json:"pageNumber"`
}

type Message struct {
	ID         string    `json:"id"` // UUID
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"` // "user" or "assistant"
	Content    string    `json:"content"`
	ImagePaths []string  `json:"image_paths,omitempty"`
	PageRefs   []PageRef `json:"pdf_references,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
