package main

import (
	"crypto/rand"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const similarPoolCacheSize = 512

// similarPools caches FindSimilar results per song so repeated rounds over
// the same library don't hit the store for every question.
var similarPools, _ = lru.New[string, []*Song](similarPoolCacheSize)

/// similarPool returns candidate songs resembling the given one: same genre,
// or released within five years.
func similarPool(songs SongRepo, s *Song) []*Song {
	if pool, ok := similarPools.Get(s.ID); ok {
		return pool
	}

	pool, err := songs.FindSimilar(SimilarFilter{
		Genre:         s.Genre,
		YearMin:       s.Year - 5,
		YearMax:       s.Year + 5,
		Language:      s.Language,
		ExcludeSongID: s.ID,
		Limit:         100,
	})
	if err != nil {
		return nil
	}

	similarPools.Add(s.ID, pool)
	return pool
}

// shuffle performs a Fisher-Yates shuffle backed by crypto/rand.
func shuffle[T any](items []T) {
	for i := len(items) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

func songValue(s *Song, kind string) string {
	if kind == AnswerArtist {
		return s.Artist
	}
	return s.Title
}

// generateWrongChoices produces up to count distractors for the correct
// item: first from the similarity pool, topped up from the full pool,
// always rejecting duplicates of the correct value (case-insensitive).
func generateWrongChoices(correct MediaContent, similar, full []*Song, count int, kind string) []string {
	correctValue := correct.Title
	if kind == AnswerArtist {
		correctValue = correct.Artist
	}

	seen := map[string]bool{strings.ToLower(correctValue): true}
	out := make([]string, 0, count)

	take := func(pool []*Song) {
		shuffled := make([]*Song, len(pool))
		copy(shuffled, pool)
		shuffle(shuffled)

		for _, s := range shuffled {
			if len(out) >= count {
				return
			}
			v := songValue(s, kind)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			out = append(out, v)
		}
	}

	take(similar)
	if len(out) < count {
		take(full)
	}

	return out
}

// buildQuestion assembles one multiple-choice question: the correct value
// plus numChoices-1 distractors, shuffled together.
func buildQuestion(songs SongRepo, song *Song, mediaType, kind string, numChoices int) *Question {
	media := mediaFor(mediaType)
	if media == nil {
		return nil
	}
	content, err := media.LoadContent(song)
	if err != nil {
		return nil
	}

	correctValue := songValue(song, kind)

	similar := similarPool(songs, song)
	full, _ := songs.GetRandom(0, true)

	wrong := generateWrongChoices(content, similar, full, numChoices-1, kind)

	choices := append([]string{correctValue}, wrong...)
	shuffle(choices)

	return &Question{
		Kind:    kind,
		Correct: correctValue,
		Choices: choices,
	}
}
