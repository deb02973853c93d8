package store

import "time"

// Draft is a saved document. Markup is the editor's rich-text markup;
// PlainText is kept alongside for full-text search.
type Draft struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Markup    string    `json:"markup"`
	PlainText string    `json:"plainText"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment is the stored metadata for an uploaded file; the payload
// itself lives in object storage under ObjectKey.
type Attachment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	ObjectKey string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
