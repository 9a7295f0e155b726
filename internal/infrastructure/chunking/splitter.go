package chunking

import (
	"strings"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

const (
	minSubsectionChars = 100
	minChunkChars      = 50
)

var _ ports.Chunker = (*Splitter)(nil)

// Splitter cuts filing sections into overlapping word windows, one subsection at a time.
type Splitter struct {
	ChunkWords   int
	OverlapWords int
}

func NewSplitter(chunkWords, overlapWords int) *Splitter {
	if chunkWords <= 0 {
		chunkWords = 500
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 10
	}
	return &Splitter{
		ChunkWords:   chunkWords,
		OverlapWords: overlapWords,
	}
}

func (s *Splitter) ChunkSections(filename string, sections []domain.Section) []domain.Chunk {
	var out []domain.Chunk
	for _, section := range sections {
		out = append(out, s.chunkSection(filename, section)...)
	}
	return out
}

func (s *Splitter) chunkSection(filename string, section domain.Section) []domain.Chunk {
	itemNumber := ItemNumber(section.Section)
	newChunk := func(idx int, text, title string) domain.Chunk {
		return domain.Chunk{
			Filename:        filename,
			Section:         section.Section,
			ChunkIdx:        idx,
			Text:            text,
			PageRange:       section.PageRange,
			CrossReferences: section.CrossReferences,
			SubsectionTitle: title,
			ItemNumber:      itemNumber,
		}
	}

	if len(section.Subsections) == 0 {
		title := DefaultSubsectionTitle(section.Section)
		windows := s.Split(section.Text)
		out := make([]domain.Chunk, 0, len(windows))
		for idx, window := range windows {
			out = append(out, newChunk(idx, window, title))
		}
		return out
	}

	var out []domain.Chunk
	idx := 0
	for _, sub := range section.Subsections {
		if len(sub.Content) < minSubsectionChars {
			continue
		}
		title := sub.Title
		if strings.TrimSpace(title) == "" {
			title = DefaultSubsectionTitle(section.Section)
		}
		for _, window := range s.Split(sub.Content) {
			if len(window) < minChunkChars {
				continue
			}
			out = append(out, newChunk(idx, window, title))
			idx++
		}
	}
	return out
}

// Split returns word windows of ChunkWords words, each starting ChunkWords-OverlapWords after the previous.
func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := s.ChunkWords - s.OverlapWords
	if step <= 0 {
		step = s.ChunkWords
	}

	out := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + s.ChunkWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

// ItemNumber turns "ITEM 1A." into "ITEM 1A".
func ItemNumber(section string) string {
	return strings.TrimSpace(strings.ReplaceAll(section, ".", ""))
}

func DefaultSubsectionTitle(section string) string {
	return ItemNumber(section) + " - Full Content"
}
