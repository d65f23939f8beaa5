package downloader

import (
	"errors"
	"sort"
	"strings"

	"github.com/jaki95/podsplit/internal/domain"
)

// ErrNoEncoding is returned when the media offers no audio encoding.
var ErrNoEncoding = errors.New("no suitable audio encoding")

// Preference selects the encoding quality tier and audio codec to download.
type Preference struct {
	Note  string `yaml:"note"`
	Codec string `yaml:"codec"`
}

// SelectEncoding returns the highest bitrate encoding matching the
// preference. When none matches, the highest bitrate audio-only encoding is
// used instead.
func SelectEncoding(formats []domain.Encoding, pref Preference) (domain.Encoding, error) {
	var preferred, audioOnly []domain.Encoding
	for _, f := range formats {
		if matches(f, pref) {
			preferred = append(preferred, f)
		}
		if f.AudioOnly() {
			audioOnly = append(audioOnly, f)
		}
	}

	if best, ok := highestBitrate(preferred); ok {
		return best, nil
	}
	if best, ok := highestBitrate(audioOnly); ok {
		return best, nil
	}
	return domain.Encoding{}, ErrNoEncoding
}

func matches(f domain.Encoding, pref Preference) bool {
	if pref.Note != "" && !strings.EqualFold(f.Note, pref.Note) {
		return false
	}
	if pref.Codec != "" && !strings.EqualFold(f.Codec, pref.Codec) {
		return false
	}
	return pref.Note != "" || pref.Codec != ""
}

func highestBitrate(formats []domain.Encoding) (domain.Encoding, bool) {
	if len(formats) == 0 {
		return domain.Encoding{}, false
	}
	sorted := append([]domain.Encoding(nil), formats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bitrate < sorted[j].Bitrate
	})
	return sorted[len(sorted)-1], true
}

// codecExtensions maps downloader codec names to container extensions that
// accept a stream copy of that codec.
var codecExtensions = map[string]string{
	"opus":   "opus",
	"vorbis": "ogg",
	"mp3":    "mp3",
	"flac":   "flac",
	"aac":    "m4a",
}

// OutputExt returns the file extension that segments of enc are written
// with when no output format is configured.
func OutputExt(enc domain.Encoding) string {
	codec := strings.ToLower(enc.Codec)
	if strings.HasPrefix(codec, "mp4a") {
		return "m4a"
	}
	if ext, ok := codecExtensions[codec]; ok {
		return ext
	}
	if enc.Ext != "" {
		return enc.Ext
	}
	return codec
}
