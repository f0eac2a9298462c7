package models

// StreamSource represents one playable stream resolved from a module
// payload, together with the request headers and subtitle sources that
// accompany it.
type StreamSource struct {
	Name      string            `json:"name,omitempty"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Subtitles []string          `json:"subtitles,omitempty"`
}
