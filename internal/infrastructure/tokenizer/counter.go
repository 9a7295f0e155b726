package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

var (
	_ ports.TokenCounter = (*TiktokenCounter)(nil)
	_ ports.TokenCounter = ApproxCounter{}
)

// TiktokenCounter counts BPE tokens with a named tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates one token per four characters.
type ApproxCounter struct{}

func (ApproxCounter) CountTokens(text string) int {
	return domain.ApproxTokenCount(text)
}

// ApproxEncoding selects the character-count approximation.
const ApproxEncoding = "approx"

// New returns a tiktoken counter for encoding, or the approximation when the
// encoding is empty, "approx", or cannot be loaded (the ranks are fetched on first use).
func New(encoding string) (ports.TokenCounter, error) {
	if e := strings.TrimSpace(encoding); e == "" || strings.EqualFold(e, ApproxEncoding) {
		return ApproxCounter{}, nil
	}
	counter, err := NewTiktoken(encoding)
	if err != nil {
		return ApproxCounter{}, err
	}
	return counter, nil
}
