// Package loader turns processed source documents into retrievable chunks.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/perbu/trustmed/pkg/trustmed"
)

// DefaultSection names entries that carry no section heading.
const DefaultSection = "Unknown Section"

// Subsection is a titled block of paragraphs or bullets inside a section.
type Subsection struct {
	Title   string   `json:"title"`
	Content []string `json:"content"`
}

// Entry is one element of a processed JSON document. Structured articles
// carry Subsections; forum threads carry Answer. Entries with neither are
// skipped.
type Entry struct {
	Section     string       `json:"section"`
	Subsections []Subsection `json:"subsections,omitempty"`
	Answer      []string     `json:"answer,omitempty"`
}

// LoadProcessed walks root in fsys and chunks every .json and .md file.
// The file name without extension is the chunk source id. Files are visited
// in lexical order and entries in file order, so the same tree always yields
// the same chunk order.
func LoadProcessed(fsys fs.FS, root string) ([]trustmed.Chunk, error) {
	var chunks []trustmed.Chunk

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		ext := path.Ext(p)
		if ext != ".json" && ext != ".md" {
			return nil
		}
		source := strings.TrimSuffix(path.Base(p), ext)

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}

		if ext == ".md" {
			chunks = append(chunks, ChunkMarkdown(source, string(content))...)
			return nil
		}

		var entries []Entry
		if err := json.Unmarshal(content, &entries); err != nil {
			return fmt.Errorf("decoding %s: %w", p, err)
		}
		chunks = append(chunks, ChunkEntries(source, entries)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// ChunkEntries converts the entries of one processed document. Every
// structured subsection becomes a chunk with id <source>_<section>_<index>;
// every forum entry becomes a chunk with id <source>_<section>.
func ChunkEntries(source string, entries []Entry) []trustmed.Chunk {
	var chunks []trustmed.Chunk

	for _, e := range entries {
		section := e.Section
		if section == "" {
			section = DefaultSection
		}

		switch {
		case e.Subsections != nil:
			for idx, sub := range e.Subsections {
				chunks = append(chunks, trustmed.Chunk{
					Text:       strings.Join(sub.Content, "\n"),
					Source:     source,
					SourceType: trustmed.SourceStructured,
					Section:    section,
					Subsection: sub.Title,
					ChunkID:    fmt.Sprintf("%s_%s_%d", source, section, idx),
				})
			}
		case e.Answer != nil:
			chunks = append(chunks, trustmed.Chunk{
				Text:       strings.Join(e.Answer, "\n"),
				Source:     source,
				SourceType: trustmed.SourceForum,
				Section:    section,
				ChunkID:    fmt.Sprintf("%s_%s", source, section),
			})
		}
	}

	return chunks
}

// ChunkMarkdown splits a markdown document into one chunk per heading.
// Text before the first heading goes under DefaultSection.
func ChunkMarkdown(source, content string) []trustmed.Chunk {
	var chunks []trustmed.Chunk

	currentHeading := DefaultSection
	var currentContent strings.Builder

	flushChunk := func() {
		text := strings.TrimSpace(currentContent.String())
		if text == "" {
			return
		}
		chunks = append(chunks, trustmed.Chunk{
			Text:       text,
			Source:     source,
			SourceType: trustmed.SourceStructured,
			Section:    currentHeading,
			ChunkID:    fmt.Sprintf("%s_%s_%d", source, currentHeading, len(chunks)),
		})
	}

	// Lines have no length limit, so a long paragraph never truncates the
	// document.
	for line := range strings.Lines(content) {
		line = strings.TrimRight(line, "\r\n")

		// Check if this is a heading (starts with #)
		if strings.HasPrefix(line, "#") {
			flushChunk()
			currentHeading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			currentContent.Reset()
			continue
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n")
		}
		currentContent.WriteString(line)
	}

	flushChunk()

	return chunks
}

// ReadChunks reads a JSON array of chunks.
func ReadChunks(path string) ([]trustmed.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []trustmed.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return chunks, nil
}

// WriteChunks writes chunks as an indented JSON array.
func WriteChunks(path string, chunks []trustmed.Chunk) error {
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
