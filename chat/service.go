package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/docchat/llm"
	"github.com/fabfab/docchat/vectorstore"
)

const (
	defaultTopK            = 5
	defaultMaxContextChars = 6000
)

// PassageRetriever returns ranked passages for a query.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error)
}

// Generator is the conversational generation contract the composer invokes.
// llm.SessionClient is the production implementation.
type Generator interface {
	Generate(ctx context.Context, prompt, conversationID string) (string, error)
	GenerateWithHistory(ctx context.Context, messages []llm.Message, conversationID string) (string, error)
	History(conversationID string) []llm.Message
	ClearHistory(conversationID string)
}

// Options tunes the composer. Zero values fall back to defaults; a negative
// MaxContextChars disables the context budget.
type Options struct {
	TopK            int
	MaxContextChars int
}

// AskOptions parametrizes a single question.
type AskOptions struct {
	ConversationID string
	TopK           int
}

// Service assembles retrieved passages into a bounded context block, builds
// the grounding prompt, and invokes the generation service.
type Service struct {
	retriever PassageRetriever
	generator Generator
	graph     GraphStore
	logger    *log.Logger
	opts      Options
}

func NewService(retriever PassageRetriever, generator Generator, graph GraphStore, logger *log.Logger, opts Options) (*Service, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MaxContextChars == 0 {
		opts.MaxContextChars = defaultMaxContextChars
	}

	return &Service{
		retriever: retriever,
		generator: generator,
		graph:     graph,
		logger:    logger,
		opts:      opts,
	}, nil
}

// Ask answers a question grounded in retrieved passages. Zero retrieved
// passages is not an error: the model is told no context was found and
// instructed to say so.
func (s *Service) Ask(ctx context.Context, question string, opts AskOptions) (AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AnswerResult{}, fmt.Errorf("question cannot be empty")
	}

	passages, err := s.retrieve(ctx, question, opts.TopK)
	if err != nil {
		return AnswerResult{}, err
	}

	prompt := formatGroundedPrompt(question, s.buildContext(passages))

	answer, err := s.generator.Generate(ctx, prompt, opts.ConversationID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("llm generate: %w", err)
	}

	return AnswerResult{
		Answer:         strings.TrimSpace(answer),
		Sources:        passages,
		ConversationID: opts.ConversationID,
	}, nil
}

// AskWithHistory answers using a caller-supplied message sequence. The
// grounding context goes into a system message prepended to that sequence,
// and the stored history for the identifier is replaced wholesale.
func (s *Service) AskWithHistory(ctx context.Context, question string, history []llm.Message, opts AskOptions) (AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AnswerResult{}, fmt.Errorf("question cannot be empty")
	}

	passages, err := s.retrieve(ctx, question, opts.TopK)
	if err != nil {
		return AnswerResult{}, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: formatGroundingSystemPrompt(s.buildContext(passages)),
	})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	answer, err := s.generator.GenerateWithHistory(ctx, messages, opts.ConversationID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("llm generate with history: %w", err)
	}

	return AnswerResult{
		Answer:         strings.TrimSpace(answer),
		Sources:        passages,
		ConversationID: opts.ConversationID,
	}, nil
}

// Search exposes retrieval without generation.
func (s *Service) Search(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	return s.retrieve(ctx, query, k)
}

// History returns the stored turns for an identifier, empty when none exist.
func (s *Service) History(conversationID string) []llm.Message {
	return s.generator.History(conversationID)
}

// ClearHistory wipes the stored turns for an identifier.
func (s *Service) ClearHistory(conversationID string) {
	s.generator.ClearHistory(conversationID)
}

func (s *Service) retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if k <= 0 {
		k = s.opts.TopK
	}

	passages, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}

	if len(passages) == 0 {
		s.logger.Printf("no passages retrieved for query")
		return passages, nil
	}

	s.attachInsights(ctx, passages)
	return passages, nil
}

// attachInsights enriches passages with graph-derived document context.
// Graph failures are logged, never fatal.
func (s *Service) attachInsights(ctx context.Context, passages []ScoredPassage) {
	if s.graph == nil {
		return
	}

	docIDs := make([]string, 0, len(passages))
	for _, passage := range passages {
		if docID, ok := passage.Metadata[vectorstore.MetadataDocumentID].(string); ok && docID != "" {
			docIDs = append(docIDs, docID)
		}
	}
	if len(docIDs) == 0 {
		return
	}

	insights, err := s.graph.DocumentInsights(ctx, unique(docIDs))
	if err != nil {
		s.logger.Printf("graph insights error: %v", err)
		return
	}

	for i := range passages {
		docID, ok := passages[i].Metadata[vectorstore.MetadataDocumentID].(string)
		if !ok {
			continue
		}
		if insight, found := insights[docID]; found {
			passages[i].Insight = insight
		}
	}
}

// buildContext concatenates passage contents with 1-based source labels in
// retrieval-rank order. A positive budget drops whole passages from the
// tail once exceeded; the first passage is truncated rather than dropped.
func (s *Service) buildContext(passages []ScoredPassage) string {
	if len(passages) == 0 {
		return ""
	}

	budget := s.opts.MaxContextChars
	var sb strings.Builder
	for idx, passage := range passages {
		block := fmt.Sprintf("Source %d:\n%s", idx+1, passage.Content)
		if budget > 0 && sb.Len()+len(block) > budget {
			if sb.Len() == 0 {
				sb.WriteString(block[:budget])
			}
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
	}
	return sb.String()
}

func formatGroundedPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the context below.\n\nContext:\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString("No context was found for this question.")
	} else {
		sb.WriteString(context)
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nIf the context does not contain the answer, say explicitly that the answer is not found in the provided documents.")
	return sb.String()
}

func formatGroundingSystemPrompt(context string) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Answer using only the context below. If the context does not contain the answer, say explicitly that the answer is not found in the provided documents.\n\nContext:\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString("No context was found for this question.")
	} else {
		sb.WriteString(context)
	}
	return sb.String()
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
