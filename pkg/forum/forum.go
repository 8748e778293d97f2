// Package forum prepares scraped forum threads for indexing: it cleans post
// text and merges threads that ask near-identical questions.
package forum

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the similarity at which two questions are merged.
const DefaultThreshold = 0.80

// Thread is a scraped forum thread.
type Thread struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
	URL      string   `json:"url"`
}

// Entry is a processed forum entry, in the format the loader reads as a
// forum chunk.
type Entry struct {
	Section      string   `json:"section"`
	Answer       []string `json:"answer"`
	SourceURLs   []string `json:"source_urls"`
	NumClustered int      `json:"num_threads_clustered"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText trims text and collapses every run of whitespace to one space.
func CleanText(text string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// Similarity returns a case-insensitive similarity ratio in [0, 1] based on
// the rune-level edit distance. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Dedupe groups threads whose cleaned questions are at least threshold
// similar to the first question of a group, scanning in input order. Each
// group becomes one Entry headed by its first question, with the non-empty
// answers of all its threads (exact repeats dropped) and their distinct URLs.
func Dedupe(threads []Thread, threshold float64) []Entry {
	questions := make([]string, len(threads))
	for i, t := range threads {
		questions[i] = CleanText(t.Question)
	}

	visited := make([]bool, len(threads))
	var entries []Entry

	for i := range threads {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := []int{i}

		for j := i + 1; j < len(threads); j++ {
			if visited[j] {
				continue
			}
			if Similarity(questions[i], questions[j]) >= threshold {
				cluster = append(cluster, j)
				visited[j] = true
			}
		}

		entries = append(entries, merge(questions[i], threads, cluster))
	}

	return entries
}

func merge(section string, threads []Thread, cluster []int) Entry {
	e := Entry{
		Section:      section,
		Answer:       []string{},
		SourceURLs:   []string{},
		NumClustered: len(cluster),
	}
	seenAnswer := make(map[string]bool)
	seenURL := make(map[string]bool)

	for _, idx := range cluster {
		for _, a := range threads[idx].Answers {
			a = CleanText(a)
			if a == "" || seenAnswer[a] {
				continue
			}
			seenAnswer[a] = true
			e.Answer = append(e.Answer, a)
		}
		if u := threads[idx].URL; u != "" && !seenURL[u] {
			seenURL[u] = true
			e.SourceURLs = append(e.SourceURLs, u)
		}
	}
	return e
}
