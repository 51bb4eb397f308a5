package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/evaluator/internal/models"
)

type ProcessorConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	MinChunkLength  int
	RemoveStopwords bool
	CustomStopwords []string
	Lowercase       bool
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}

	stopwords := make(map[string]struct{})
	for _, w := range append(getStopwords(), config.CustomStopwords...) {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return Processor{
		config:    config,
		stopwords: stopwords,
	}
}

func (p *Processor) Process(proposals []models.Proposal) ([]models.ProcessedProposal, error) {
	var processed []models.ProcessedProposal

	for _, proposal := range proposals {
		cleanContent := p.cleanText(proposal.Content)

		chunks := p.splitIntoChunks(cleanContent)

		// A short proposal is still one chunk.
		if len(chunks) == 0 && cleanContent != "" {
			chunks = []string{cleanContent}
		}

		processed = append(processed, models.ProcessedProposal{
			Proposal: proposal,
			Chunks:   chunks,
		})
	}

	return processed, nil
}

// Summary returns the leading sentences of text, up to roughly limit bytes.
func Summary(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}

	var b strings.Builder
	for _, sentence := range splitIntoSentences(text) {
		if b.Len() > 0 && b.Len()+len(sentence)+1 > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}

	out := b.String()
	if len(out) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut]) + "…"
	}
	return out
}

func (p *Processor) cleanText(text string) string {
	if p.config.Lowercase {
		text = strings.ToLower(text)
	}

	// Replace multiple spaces with single space
	text = strings.Join(strings.Fields(text), " ")

	if p.config.RemoveStopwords {
		text = p.removeStopwords(text)
	}

	return strings.TrimSpace(text)
}

func (p *Processor) splitIntoChunks(text string) []string {
	var chunks []string

	sentences := splitIntoSentences(text)

	currentChunk := strings.Builder{}

	for _, sentence := range sentences {
		// If adding this sentence would exceed chunk size
		if currentChunk.Len() > 0 && currentChunk.Len()+len(sentence) > p.config.ChunkSize {
			if currentChunk.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}

			// Start new chunk with overlap
			text := currentChunk.String()
			currentChunk.Reset()
			if p.config.ChunkOverlap > 0 && len(text) > p.config.ChunkOverlap {
				currentChunk.WriteString(overlapTail(text, p.config.ChunkOverlap))
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	if currentChunk.Len() >= p.config.MinChunkLength {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

// overlapTail returns at most n trailing bytes of text, starting on a word
// boundary so no rune or word is split.
func overlapTail(text string, n int) string {
	start := len(text) - n
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	tail := text[start:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return tail
}

func splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func (p *Processor) removeStopwords(text string) string {
	words := strings.Fields(text)
	filtered := words[:0]

	for _, word := range words {
		if _, stop := p.stopwords[strings.ToLower(word)]; !stop {
			filtered = append(filtered, word)
		}
	}

	return strings.Join(filtered, " ")
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
	}
}
