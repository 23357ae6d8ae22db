package download

import (
	"fmt"

	"github.com/bogem/id3v2/v2"
)

// Tags is the slice of ID3 metadata kept from downloaded audio. Broadcasters
// tag inconsistently, so every field may be empty.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Year   string
}

// Empty reports whether the file carried no usable ID3 metadata.
func (t Tags) Empty() bool {
	return t.Title == "" && t.Artist == "" && t.Album == "" && t.Year == ""
}

// ReadTags parses the ID3v2 header of an MP3 on disk. Untagged files return
// the zero value without error; only unreadable files fail.
func ReadTags(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Tags{}, fmt.Errorf("parse id3 tags: %w", err)
	}
	defer tag.Close()

	return Tags{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Year:   tag.Year(),
	}, nil
}
