// Package chat orchestrates a full question-answer exchange: it
// validates input, contextualizes the query against the session
// history, retrieves supporting chunks and produces the answer.
package chat

import (
	"context"
	"log/slog"
	"strings"

	appErrors "docchat/internal/errors"
	"docchat/internal/index"
	"docchat/internal/llm"
	"docchat/internal/session"
	"docchat/internal/store"
)

// RetrievalConfig controls how supporting chunks are selected.
type RetrievalConfig struct {
	// Strategy is "mmr" or "similarity".
	Strategy string
	// K is the number of chunks handed to the model.
	K int
	// FetchK is the candidate pool size for MMR re-ranking.
	FetchK int
	// Lambda balances relevance against diversity for MMR.
	Lambda float64
}

// Service answers questions over the indexed documents.
type Service struct {
	engine    *index.Engine
	sessions  *session.Store
	client    llm.Client
	retrieval RetrievalConfig
	logger    *slog.Logger
}

// NewService wires the query pipeline together.
func NewService(engine *index.Engine, sessions *session.Store, client llm.Client, retrieval RetrievalConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if retrieval.K <= 0 {
		retrieval.K = 3
	}
	if retrieval.FetchK <= 0 {
		retrieval.FetchK = 20
	}
	if retrieval.Lambda <= 0 {
		retrieval.Lambda = 0.5
	}
	return &Service{
		engine:    engine,
		sessions:  sessions,
		client:    client,
		retrieval: retrieval,
		logger:    logger,
	}
}

// Response is the result of one exchange. Title is non-nil only when
// this exchange caused the session title to be generated.
type Response struct {
	Answer string  `json:"answer"`
	Title  *string `json:"title"`
}

// Answer runs one full exchange for the given session and records it
// in the session history.
func (s *Service) Answer(ctx context.Context, sessionID, query string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErrors.ValidationError(appErrors.ErrCodeEmptyQuery, "query must not be empty")
	}
	if sessionID == "" {
		return nil, appErrors.ValidationError(appErrors.ErrCodeEmptySessionID, "session_id must not be empty")
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	history := toHistory(sess.History)

	imageQuery := llm.IsImageQuery(ctx, s.client, query)

	searchQuery, err := llm.Contextualize(ctx, s.client, history, query)
	if err != nil {
		return nil, appErrors.New(appErrors.ErrCodeChatModelFailed, "failed to contextualize query", err)
	}

	chunks, err := s.retrieve(ctx, searchQuery)
	if err != nil {
		return nil, err
	}

	contextTexts := make([]string, len(chunks))
	for i, c := range chunks {
		contextTexts[i] = c.Text
	}

	answer, err := llm.Answer(ctx, s.client, history, contextTexts, query, imageQuery)
	if err != nil {
		return nil, appErrors.New(appErrors.ErrCodeChatModelFailed, "failed to generate answer", err)
	}

	resp := &Response{Answer: answer}

	if sess.HasPlaceholderTitle() {
		title, err := llm.GenerateTitle(ctx, s.client, query)
		if err != nil {
			// The exchange still counts; keep the placeholder.
			s.logger.Warn("title generation failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		} else if title != "" {
			resp.Title = &title
		}
	}

	if _, err := s.sessions.Mutate(sessionID, func(sess *session.Session) error {
		sess.Append(query, answer)
		if resp.Title != nil {
			sess.Title = *resp.Title
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return resp, nil
}

// retrieve selects supporting chunks for the search query.
func (s *Service) retrieve(ctx context.Context, query string) ([]store.ChunkRecord, error) {
	useMMR := s.retrieval.Strategy != "similarity"
	return s.engine.Retrieve(ctx, query, s.retrieval.K, s.retrieval.FetchK, s.retrieval.Lambda, useMMR)
}

// toHistory converts stored messages into the model's history view.
func toHistory(msgs []session.Message) []llm.HistoryMessage {
	history := make([]llm.HistoryMessage, len(msgs))
	for i, m := range msgs {
		history[i] = llm.HistoryMessage{Role: m.Type, Content: m.Content}
	}
	return history
}
