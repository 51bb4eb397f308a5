package models

import "time"

// Proposal is a submitted R&D proposal after text extraction.
type Proposal struct {
	ID       string
	Title    string
	Source   string
	Content  string
	Metadata map[string]interface{}
}

// ProcessedProposal is a proposal split into embeddable chunks.
type ProcessedProposal struct {
	Proposal
	Chunks []string
}

// ProposalRecord is one entry of the persistent proposal collection.
type ProposalRecord struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Source    string                 `json:"source"`
	Summary   string                 `json:"summary"`
	Embedding []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IndexedAt time.Time              `json:"indexed_at"`
}

// Match is a stored proposal returned by a similarity query. Score is the
// cosine similarity to the query vector.
type Match struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Source string  `json:"source"`
	Score  float32 `json:"score"`
}

const EvaluationPending = "Evaluation logic pending."

// EvaluationAck acknowledges an uploaded proposal.
type EvaluationAck struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
