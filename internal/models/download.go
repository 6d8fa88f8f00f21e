package models

import "time"

// Download is a delivered result the user can fetch once.
type Download struct {
	ID        string    `json:"id" msgpack:"id"`
	Filename  string    `json:"filename" msgpack:"filename"`
	Size      int64     `json:"size" msgpack:"size"`
	URL       string    `json:"url,omitempty" msgpack:"url"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" msgpack:"expiresAt"`
}
