package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/evaluator/internal/models"
)

func TestProcessor_Process(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{
		ChunkSize:      40,
		ChunkOverlap:   10,
		MinChunkLength: 5,
	})

	proposals := []models.Proposal{
		{ID: "p-1", Content: "Alpha beta gamma.  Delta epsilon zeta.\nEta theta iota. Kappa lambda mu."},
	}

	processed, err := p.Process(proposals)
	require.NoError(t, err)
	require.Len(t, processed, 1)

	assert.Equal(t, "p-1", processed[0].ID)
	assert.Equal(t, []string{
		"Alpha beta gamma. Delta epsilon zeta.",
		"zeta. Eta theta iota. Kappa lambda mu.",
	}, processed[0].Chunks)
}

func TestProcessor_ShortProposal(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{})

	processed, err := p.Process([]models.Proposal{
		{ID: "short", Content: "Tiny abstract."},
		{ID: "empty", Content: "   "},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Tiny abstract."}, processed[0].Chunks)
	assert.Empty(t, processed[1].Chunks)
}

func TestProcessor_CleanText(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{
		RemoveStopwords: true,
		CustomStopwords: []string{"proposal"},
		Lowercase:       true,
	})

	got := p.cleanText("The   Proposal is a study of\tthe GRID")
	assert.Equal(t, "study grid", got)
}

func TestSplitIntoSentences(t *testing.T) {
	got := splitIntoSentences("Is it novel? Yes! It is. trailing")
	assert.Equal(t, []string{"Is it novel?", "Yes!", "It is.", "trailing"}, got)
}

func TestOverlapTail(t *testing.T) {
	assert.Equal(t, "zeta. ", overlapTail("Delta epsilon zeta. ", 10))
	assert.Equal(t, "é", overlapTail("abc é", 2))
}

func TestSummary(t *testing.T) {
	text := "First sentence here. Second sentence is longer. Third."

	assert.Equal(t, text, Summary(text, 100))
	assert.Equal(t, "First sentence here.", Summary(text, 45))

	long := strings.Repeat("word ", 20)
	got := Summary(long, 12)
	assert.Equal(t, "word word wo…", got)
}
