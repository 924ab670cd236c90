package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultExtension is used when neither the file name nor the media type
// identifies a container.
const DefaultExtension = ".m4a"

// containers maps file extensions to the media type of the split parts.
var containers = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// byType is the preferred extension for a declared media type.
var byType = map[string]string{
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/m4a":    ".m4a",
	"audio/aac":    ".aac",
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/ogg":    ".ogg",
	"audio/opus":   ".opus",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/webm":   ".webm",
}

// IsAudioType reports whether mediaType belongs to the audio family.
func IsAudioType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "audio/")
}

// ExtensionForType returns the file extension for a declared media type.
// Parameters such as "; codecs=..." are ignored.
// Unknown types yield DefaultExtension.
func ExtensionForType(mediaType string) string {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mediaType))
	}
	if ext, ok := byType[base]; ok {
		return ext
	}
	return DefaultExtension
}

// MediaTypeForExt returns the media type of a container extension.
// Unknown extensions yield the media type of DefaultExtension.
func MediaTypeForExt(ext string) string {
	if t, ok := containers[strings.ToLower(ext)]; ok {
		return t
	}
	return containers[DefaultExtension]
}

// ContainerExt returns the extension of name if it is a known container,
// otherwise the extension implied by mediaType.
func ContainerExt(name, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := containers[ext]; ok {
		return ext
	}
	return ExtensionForType(mediaType)
}
