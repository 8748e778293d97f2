package trustmed

// SourceType tags how ingestion assembled a chunk's text. It has no effect
// on retrieval.
type SourceType string

const (
	SourceStructured SourceType = "structured"
	SourceForum      SourceType = "forum"
)

// Chunk is one retrievable unit of source text with its position in the
// originating document.
type Chunk struct {
	Text       string     `json:"text"`
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type,omitempty"`
	Section    string     `json:"section"`
	Subsection string     `json:"subsection"` // empty when the source has no sub-structure
	ChunkID    string     `json:"chunk_id"`
}

// RankedChunk is a retrieval hit. Rank 1 is the closest match.
type RankedChunk struct {
	Rank       int     `json:"rank"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Section    string  `json:"section"`
	Subsection string  `json:"subsection"`
	ChunkID    string  `json:"chunk_id"`
	Distance   float64 `json:"distance"` // squared L2, smaller is closer

	// Row is the chunk's position in the indexed corpus. Chunk ids are not
	// guaranteed unique, Row is.
	Row int `json:"-"`
}

// Rank builds a RankedChunk from the chunk at row and its distance.
func Rank(rank, row int, c Chunk, distance float64) RankedChunk {
	return RankedChunk{
		Row:        row,
		Rank:       rank,
		Text:       c.Text,
		Source:     c.Source,
		Section:    c.Section,
		Subsection: c.Subsection,
		ChunkID:    c.ChunkID,
		Distance:   distance,
	}
}
