package domain

import "strings"

// Encoding is one downloadable rendition of the source media as reported by
// the downloader.
type Encoding struct {
	ID         string  `json:"format_id"`
	Codec      string  `json:"acodec"`
	VideoCodec string  `json:"vcodec"`
	Ext        string  `json:"ext"`
	Note       string  `json:"format_note"`
	Bitrate    float64 `json:"tbr"`
}

// AudioOnly reports whether the encoding carries no video stream.
func (e Encoding) AudioOnly() bool {
	return e.Codec != "" && e.Codec != "none" && (e.VideoCodec == "" || e.VideoCodec == "none")
}

// Metadata describes the source media.
type Metadata struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Channel     string     `json:"channel"`
	Uploader    string     `json:"uploader"`
	Description string     `json:"description"`
	Duration    float64    `json:"duration"`
	Formats     []Encoding `json:"formats"`
}

// Artist returns the channel name, falling back to the uploader.
func (m *Metadata) Artist() string {
	if s := strings.TrimSpace(m.Channel); s != "" {
		return s
	}
	return strings.TrimSpace(m.Uploader)
}
