package database

import "time"

// Media is one indexed image.
type Media struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"` // slash separated, relative to the media directory
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modTime"`
	MimeType string    `json:"mimeType,omitempty"`
	Format   string    `json:"format,omitempty"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	FileHash string    `json:"-"`

	// UpdatedAt is the index run that last saw the file.
	UpdatedAt time.Time `json:"updatedAt"`
}

// IndexStats summarizes the index.
type IndexStats struct {
	TotalImages   int            `json:"totalImages"`
	TotalBytes    int64          `json:"totalBytes"`
	ByFormat      map[string]int `json:"byFormat"`
	LastIndexed   time.Time      `json:"lastIndexed"`
	IndexDuration string         `json:"indexDuration"`
}
