package models

// Conversation is a chat thread with its messages in order.
type Conversation struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Mode     string    `json:"mode"`
	Messages []Message `json:"messages"`
}

// Message is one entry of a conversation. A bot message with IsLoading set is
// the pending answer that receives the sources of a streamed response.
type Message struct {
	ID        int64    `json:"id"`
	Sender    string   `json:"sender"`
	Text      *string  `json:"text,omitempty"`
	Type      *string  `json:"type,omitempty"`
	FileName  *string  `json:"fileName,omitempty"`
	FileURL   *string  `json:"fileUrl,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	IsLoading bool     `json:"isLoading,omitempty"`
}

// MessageUpdate patches a message. Nil fields are left untouched; Delete
// removes the message instead.
type MessageUpdate struct {
	ID        int64    `json:"id"`
	Sender    *string  `json:"sender,omitempty"`
	Text      *string  `json:"text,omitempty"`
	Type      *string  `json:"type,omitempty"`
	FileName  *string  `json:"fileName,omitempty"`
	FileURL   *string  `json:"fileUrl,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	IsLoading *bool    `json:"isLoading,omitempty"`
	Delete    bool     `json:"delete,omitempty"`
}
