package chat

// ScoredPassage is retrieved chunk content with its similarity score, in
// the ranking order returned by the vector index.
type ScoredPassage struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
	Insight  DocumentInsight
}

// DocumentInsight carries graph-derived context about a passage's parent
// document. Zero value means no insight is available.
type DocumentInsight struct {
	ChunkCount       int
	Tags             []string
	RelatedDocuments []RelatedDocument
}

type RelatedDocument struct {
	ID     string
	Title  string
	Reason string
}

// AnswerResult is the outcome of one grounded question.
type AnswerResult struct {
	Answer         string
	Sources        []ScoredPassage
	ConversationID string
}
