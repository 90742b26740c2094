package tagging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ErrUnsupportedFormat is returned for files the tagger cannot handle.
// Only mp3 artifacts carry tags; mp4 containers are left as the engine
// produced them.
var ErrUnsupportedFormat = fmt.Errorf("unsupported file format for tagging")

// Metadata is the small slice of probe metadata worth embedding in the
// downloaded audio file.
type Metadata struct {
	Title    string
	Uploader string
	Comment  string
}

// TagFile writes ID3v2 tags to an MP3 file in place.
func TagFile(filePath string, meta Metadata) error {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext != ".mp3" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Uploader != "" {
		tag.SetArtist(meta.Uploader)
	}
	if meta.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    tag.DefaultEncoding(),
			Language:    "eng",
			Description: "source",
			Text:        meta.Comment,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}
	return nil
}
