package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaki95/podsplit/internal/domain"
)

var sampleFormats = []domain.Encoding{
	{ID: "249", Codec: "opus", VideoCodec: "none", Ext: "webm", Note: "tiny", Bitrate: 55.1},
	{ID: "251", Codec: "opus", VideoCodec: "none", Ext: "webm", Note: "tiny", Bitrate: 131.2},
	{ID: "250", Codec: "opus", VideoCodec: "none", Ext: "webm", Note: "tiny", Bitrate: 70.4},
	{ID: "140", Codec: "mp4a.40.2", VideoCodec: "none", Ext: "m4a", Note: "tiny", Bitrate: 129.5},
	{ID: "18", Codec: "mp4a.40.2", VideoCodec: "avc1.42001E", Ext: "mp4", Note: "360p", Bitrate: 500},
}

func TestSelectEncodingPreferred(t *testing.T) {
	enc, err := SelectEncoding(sampleFormats, Preference{Note: "tiny", Codec: "opus"})
	require.NoError(t, err)
	assert.Equal(t, "251", enc.ID)
}

func TestSelectEncodingFallsBackToAudioOnly(t *testing.T) {
	enc, err := SelectEncoding(sampleFormats, Preference{Note: "tiny", Codec: "flac"})
	require.NoError(t, err)
	assert.Equal(t, "251", enc.ID, "highest bitrate audio-only encoding")

	enc, err = SelectEncoding(sampleFormats, Preference{})
	require.NoError(t, err)
	assert.Equal(t, "251", enc.ID)
}

func TestSelectEncodingCodecOnly(t *testing.T) {
	enc, err := SelectEncoding(sampleFormats, Preference{Codec: "MP4A.40.2"})
	require.NoError(t, err)
	assert.Equal(t, "18", enc.ID, "codec match ignores the quality tier")
}

func TestSelectEncodingNone(t *testing.T) {
	_, err := SelectEncoding(nil, Preference{Note: "tiny", Codec: "opus"})
	assert.ErrorIs(t, err, ErrNoEncoding)

	_, err = SelectEncoding([]domain.Encoding{{ID: "137", Codec: "none", VideoCodec: "avc1"}}, Preference{})
	assert.ErrorIs(t, err, ErrNoEncoding)
}

func TestOutputExt(t *testing.T) {
	tests := []struct {
		enc      domain.Encoding
		expected string
	}{
		{domain.Encoding{Codec: "opus", Ext: "webm"}, "opus"},
		{domain.Encoding{Codec: "mp4a.40.2", Ext: "m4a"}, "m4a"},
		{domain.Encoding{Codec: "vorbis", Ext: "webm"}, "ogg"},
		{domain.Encoding{Codec: "ec-3", Ext: "mp4"}, "mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.enc.Codec, func(t *testing.T) {
			assert.Equal(t, tt.expected, OutputExt(tt.enc))
		})
	}
}
