// Package status provides the advisory, human-readable progress messages shown
// while a split job runs. Messages are localized with golang.org/x/text and are
// not part of the programmatic API.
package status

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies one status message.
type Key string

// Message keys, one per observable step of a job.
const (
	KeyLoadingEngine Key = "loading_engine"
	KeyProbing       Key = "probing"
	KeyStaging       Key = "staging"
	KeyCuttingFirst  Key = "cutting_first"
	KeyCuttingSecond Key = "cutting_second"
	KeyPackaging     Key = "packaging"
	KeySucceeded     Key = "succeeded"
	KeyFailed        Key = "failed"
	KeyRejected      Key = "rejected"
)

var messages = map[language.Tag]map[Key]string{
	language.English: {
		KeyLoadingEngine: "Loading the audio engine...",
		KeyProbing:       "Reading audio file information...",
		KeyStaging:       "Writing the file to the engine...",
		KeyCuttingFirst:  "Cutting the first part...",
		KeyCuttingSecond: "Cutting the second part...",
		KeyPackaging:     "Building the result files...",
		KeySucceeded:     "The file was split successfully!",
		KeyFailed:        "Something went wrong. Please try the file again.",
		KeyRejected:      "This is not an audio file. Please choose an m4a file.",
	},
	language.Korean: {
		KeyLoadingEngine: "FFmpeg 엔진 로드 중...",
		KeyProbing:       "오디오 파일 정보 읽는 중...",
		KeyStaging:       "파일을 FFmpeg에 쓰는 중...",
		KeyCuttingFirst:  "첫 번째 부분 자르는 중...",
		KeyCuttingSecond: "두 번째 부분 자르는 중...",
		KeyPackaging:     "결과 파일 생성 중...",
		KeySucceeded:     "파일 분할이 완료되었습니다!",
		KeyFailed:        "오류가 발생했습니다. 파일을 다시 시도해주세요.",
		KeyRejected:      "오디오 파일이 아닙니다. m4a 파일을 선택해주세요.",
	},
}

var supported = []language.Tag{language.English, language.Korean}

// Printer renders status messages in one language.
type Printer struct {
	tag     language.Tag
	printer *message.Printer
}

// Supported reports whether lang resolves to one of the bundled languages.
func Supported(lang string) bool {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	for _, s := range supported {
		if b, _ := s.Base(); b == base {
			return true
		}
	}
	return false
}

// NewPrinter creates a Printer for lang (a BCP 47 tag such as "en" or "ko").
// Unknown languages fall back to English.
func NewPrinter(lang string) (*Printer, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, string(key), msg); err != nil {
				return nil, fmt.Errorf("status: register %s/%s: %w", tag, key, err)
			}
		}
	}

	tag := language.English
	if parsed, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		matcher := language.NewMatcher(supported)
		_, idx, _ := matcher.Match(parsed)
		tag = supported[idx]
	}

	return &Printer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// Language returns the language messages are rendered in.
func (p *Printer) Language() language.Tag {
	return p.tag
}

// Text returns the message for key.
func (p *Printer) Text(key Key) string {
	return p.printer.Sprintf(string(key))
}
