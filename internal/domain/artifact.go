package domain

import "time"

// Artifact references one outbound message so it can be deleted later.
type Artifact struct {
	ID        int64
	UserID    int64
	ChatID    int64
	MessageID int
	CreatedAt time.Time
}

// ContentItem is one piece of course content from the catalog.
type ContentItem struct {
	Code    string `json:"code"`
	Caption string `json:"caption"`
	URL     string `json:"url,omitempty"`
	PhotoID string `json:"photo_file_id,omitempty"`
}

// Button is an inline button: either a callback (Data) or a link (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

// Message is a transport-neutral outbound message.
type Message struct {
	Text    string
	PhotoID string
	Buttons [][]Button
}
