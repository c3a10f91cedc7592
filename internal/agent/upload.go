package agent

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Joseda-hg/taskflow/internal/model"
)

// MaxUploadChars bounds how much of a document is sent to the model.
const MaxUploadChars = 4000

const uploadPrompt = "I uploaded a file '%s' with the following content. Please extract all tasks from it:\n\n%s"

// HandleUpload extracts tasks from an uploaded text document.
func (a *Agent) HandleUpload(ctx context.Context, owner int64, filename string, data []byte) (Reply, error) {
	text := truncateRunes(DecodeText(data), MaxUploadChars)
	reply, err := a.Handle(ctx, Request{
		Owner: owner,
		Text:  fmt.Sprintf(uploadPrompt, filename, text),
		Kind:  model.KindFile,
	})
	reply.Filename = filename
	return reply, err
}

// DecodeText reads data as UTF-8, falling back to Latin-1.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
