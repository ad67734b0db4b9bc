// Package api exposes the document-chat pipeline over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fabfab/docchat/agent"
	"github.com/fabfab/docchat/chat"
	"github.com/fabfab/docchat/llm"
)

// Server serves HTTP handlers over an assembled pipeline.
type Server struct {
	agent   *agent.Agent
	logger  *log.Logger
	dataDir string
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type ingestResponse struct {
	ChunksIndexed int `json:"chunksIndexed"`
}

type askRequest struct {
	Question       string        `json:"question"`
	ConversationID string        `json:"conversationId"`
	TopK           int           `json:"topK"`
	History        []chatMessage `json:"history,omitempty"`
}

type askResponse struct {
	Answer         string        `json:"answer"`
	Sources        []passageInfo `json:"sources"`
	ConversationID string        `json:"conversationId,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

type searchResponse struct {
	Results []passageInfo `json:"results"`
}

type historyResponse struct {
	ConversationID string        `json:"conversationId"`
	Messages       []chatMessage `json:"messages"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

type deleteDocumentRequest struct {
	ChunkIDs []string `json:"chunkIds"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type passageInfo struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Insight  *insightInfo   `json:"insight,omitempty"`
}

type insightInfo struct {
	ChunkCount       int               `json:"chunkCount"`
	Tags             []string          `json:"tags,omitempty"`
	RelatedDocuments []relatedDocument `json:"relatedDocuments,omitempty"`
}

type relatedDocument struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// New constructs a Server over the given pipeline.
func New(a *agent.Agent, dataDir string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{agent: a, logger: logger, dataDir: dataDir}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/history/", s.handleHistory)
	mux.HandleFunc("/v1/documents/", s.handleDeleteDocument)
	mux.HandleFunc("/v1/reset", s.handleReset)
	mux.HandleFunc("/v1/stats", s.handleStats)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.dataDir
	}

	indexed, err := s.agent.IngestDirectory(r.Context(), dir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{ChunksIndexed: indexed})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	opts := chat.AskOptions{ConversationID: req.ConversationID, TopK: req.TopK}

	var (
		result chat.AnswerResult
		err    error
	)
	if len(req.History) > 0 {
		history := make([]llm.Message, len(req.History))
		for i, msg := range req.History {
			history[i] = llm.Message{Role: msg.Role, Content: msg.Content}
		}
		result, err = s.agent.AskWithHistory(r.Context(), req.Question, history, opts)
	} else {
		result, err = s.agent.Ask(r.Context(), req.Question, opts)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ask failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, askResponse{
		Answer:         result.Answer,
		Sources:        toPassageInfos(result.Sources),
		ConversationID: result.ConversationID,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	passages, err := s.agent.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("search failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, searchResponse{Results: toPassageInfos(passages)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimPrefix(r.URL.Path, "/v1/history/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("conversation id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		messages := s.agent.History(conversationID)
		converted := make([]chatMessage, len(messages))
		for i, msg := range messages {
			converted[i] = chatMessage{Role: msg.Role, Content: msg.Content}
		}
		s.writeJSON(w, http.StatusOK, historyResponse{ConversationID: conversationID, Messages: converted})
	case http.MethodDelete:
		s.agent.ClearHistory(conversationID)
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "history cleared"})
	default:
		s.methodNotAllowed(w, http.MethodGet+", "+http.MethodDelete)
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, http.MethodDelete)
		return
	}

	docID := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if docID == "" || strings.Contains(docID, "/") {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("document id is required"))
		return
	}

	var req deleteDocumentRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	if err := s.agent.DeleteDocument(r.Context(), docID, req.ChunkIDs); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("delete document failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "document removed"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to reset the index"))
		return
	}

	if err := s.agent.Reset(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("reset failed: %w", err))
		return
	}

	s.logger.Println("vector index namespace cleared")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "index reset"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.agent.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("stats failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("http %d: %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, target any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func toPassageInfos(passages []chat.ScoredPassage) []passageInfo {
	infos := make([]passageInfo, len(passages))
	for i, passage := range passages {
		info := passageInfo{
			ID:       passage.ID,
			Score:    passage.Score,
			Content:  passage.Content,
			Metadata: passage.Metadata,
		}
		if passage.Insight.ChunkCount > 0 || len(passage.Insight.Tags) > 0 || len(passage.Insight.RelatedDocuments) > 0 {
			insight := insightInfo{
				ChunkCount: passage.Insight.ChunkCount,
				Tags:       passage.Insight.Tags,
			}
			for _, related := range passage.Insight.RelatedDocuments {
				insight.RelatedDocuments = append(insight.RelatedDocuments, relatedDocument(related))
			}
			info.Insight = &insight
		}
		infos[i] = info
	}
	return infos
}
