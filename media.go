package main

import "strings"

// Media types
const (
	MediaMusic        = "music"
	MediaPicture      = "picture"
	MediaVideo        = "video"
	MediaTextQuestion = "text_question"
)

// Media normalises stored content for one media kind and owns the matching
// rule for its answers.
type Media interface {
	Type() string
	LoadContent(song *Song) (MediaContent, error)
	ValidateMatch(answer, correct string) bool
}

// mediaRegistry maps a media tag to its handler. Populated at startup,
// never mutated afterwards.
var mediaRegistry = map[string]Media{}

func registerMedia(m Media) {
	mediaRegistry[m.Type()] = m
}

func mediaFor(mediaType string) Media {
	return mediaRegistry[mediaType]
}

func mediaTypes() []string {
	out := make([]string, 0, len(mediaRegistry))
	for t := range mediaRegistry {
		out = append(out, t)
	}
	return out
}

// baseMedia carries the default matching rule: normalised case-insensitive
// equality.
type baseMedia struct{}

func (baseMedia) ValidateMatch(answer, correct string) bool {
	return normalizeAnswer(answer) == normalizeAnswer(correct)
}

// musicMedia is the only media kind core gameplay requires.
type musicMedia struct{ baseMedia }

func (musicMedia) Type() string { return MediaMusic }

func (musicMedia) LoadContent(song *Song) (MediaContent, error) {
	if song == nil {
		return MediaContent{}, gameErr(ErrNotFound, "no song content")
	}
	return MediaContent{
		ID:       song.ID,
		Title:    song.Title,
		Artist:   song.Artist,
		FilePath: song.FilePath,
		Metadata: map[string]string{
			"album":  song.Album,
			"genre":  song.Genre,
			"format": song.Format,
		},
	}, nil
}

// pictureMedia backs the picture round; content is the image behind
// FilePath, questions are still title/artist.
type pictureMedia struct{ baseMedia }

func (pictureMedia) Type() string { return MediaPicture }

func (pictureMedia) LoadContent(song *Song) (MediaContent, error) {
	if song == nil || song.FilePath == "" {
		return MediaContent{}, gameErr(ErrNotFound, "no picture content")
	}
	return MediaContent{
		ID:       song.ID,
		Title:    song.Title,
		Artist:   song.Artist,
		FilePath: song.FilePath,
	}, nil
}

// stubMedia reserves a tag for future extension; loading always refuses.
type stubMedia struct {
	baseMedia
	tag string
}

func (s stubMedia) Type() string { return s.tag }

func (s stubMedia) LoadContent(*Song) (MediaContent, error) {
	return MediaContent{}, gameErr(ErrValidation, "media type %q is not playable yet", s.tag)
}

func init() {
	registerMedia(musicMedia{})
	registerMedia(pictureMedia{})
	registerMedia(stubMedia{tag: MediaVideo})
	registerMedia(stubMedia{tag: MediaTextQuestion})
}

// validMediaType reports whether the tag names a registered media kind.
func validMediaType(tag string) bool {
	_, ok := mediaRegistry[strings.ToLower(tag)]
	return ok
}
