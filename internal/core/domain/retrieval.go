package domain

// SearchFilter scopes a retrieval to a single filing when Filename is set.
type SearchFilter struct {
	Filename string
}

type CrossReference struct {
	TargetSection string `json:"target_section"`
	Context       string `json:"context"`
}

// Chunk is an immutable, retrievable unit of filing text. It is owned by the
// index stores; results point at it and never modify it.
type Chunk struct {
	Filename        string           `json:"filename"`
	Section         string           `json:"section"`
	ChunkIdx        int              `json:"chunk_idx"`
	Text            string           `json:"text"`
	PageRange       [2]int           `json:"page_range"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
	SubsectionTitle string           `json:"subsection_title,omitempty"`
	ItemNumber      string           `json:"item_number,omitempty"`
}

type ChunkKey struct {
	Filename string
	Section  string
	ChunkIdx int
}

func (c Chunk) Key() ChunkKey {
	return ChunkKey{Filename: c.Filename, Section: c.Section, ChunkIdx: c.ChunkIdx}
}

type SearchType string

const (
	SearchTypeDense        SearchType = "dense"
	SearchTypeSparse       SearchType = "sparse"
	SearchTypeHybrid       SearchType = "hybrid"
	SearchTypeSectionMatch SearchType = "section_match"
)

// ChannelHit is a raw hit from a single retrieval channel.
type ChannelHit struct {
	Chunk *Chunk
	Score float64
}

// BoostTrace records how a subsection boost changed a result's score.
type BoostTrace struct {
	OriginalScore float64  `json:"original_score"`
	Multiplier    float64  `json:"boost_multiplier"`
	Reasons       []string `json:"boost_reasons"`
}

// ScoredResult carries the per-query scoring state for one chunk.
type ScoredResult struct {
	Chunk           *Chunk      `json:"chunk"`
	DenseScore      float64     `json:"dense_score"`
	SparseScore     float64     `json:"sparse_score"`
	DenseScoreNorm  float64     `json:"dense_score_norm"`
	SparseScoreNorm float64     `json:"sparse_score_norm"`
	Score           float64     `json:"score"`
	SearchType      SearchType  `json:"search_type"`
	Boost           *BoostTrace `json:"boost,omitempty"`
}

// CorpusStats describes what is currently indexed in the dense store.
type CorpusStats struct {
	TotalChunks     int      `json:"total_chunks"`
	UniqueDocuments int      `json:"unique_documents"`
	Documents       []string `json:"documents"`
}

type QueryRequest struct {
	Query     string
	Filename  string
	TopK      int
	SessionID string
}

type QueryResult struct {
	Query           string         `json:"query"`
	RewrittenQuery  *string        `json:"rewritten_query"`
	Answer          string         `json:"answer"`
	RetrievedChunks []ScoredResult `json:"retrieved_chunks"`
	NumChunks       int            `json:"num_chunks_retrieved"`
	FilterFilename  *string        `json:"filter_filename"`
	SessionID       string         `json:"session_id"`
	MemoryError     string         `json:"memory_error,omitempty"`
}
