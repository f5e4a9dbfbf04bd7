package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is an uploaded audio container
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOGG
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOGG:
		return "ogg"
	}
	return "unknown"
}

// Ext returns the file extension including the dot
func (f Format) Ext() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + f.String()
}

// ContentType returns the MIME type sent to transcription providers
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	}
	return "application/octet-stream"
}

// FormatFromName maps a file name's extension (case-insensitive) to a Format
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg":
		return FormatOGG
	}
	return FormatUnknown
}

// Sniff identifies a container from its leading bytes
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return FormatWAV
	case len(header) >= 4 && bytes.Equal(header[0:4], []byte("OggS")):
		return FormatOGG
	case len(header) >= 3 && bytes.Equal(header[0:3], []byte("ID3")):
		return FormatMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	}
	return FormatUnknown
}
