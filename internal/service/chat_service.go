package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/domain"
	"github.com/marcus-tan/askleads/internal/repository"
)

// ChatService glues persistence to the answer pipeline: it keeps
// sessions and messages in sqlite, resolves the enriched table for a
// turn, runs the pipeline, and records the assistant's answer.
type ChatService struct {
	sessions  *repository.SessionRepository
	snapshots *repository.SnapshotRepository
	registry  *QueryRegistry
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	sessions *repository.SessionRepository,
	snapshots *repository.SnapshotRepository,
	registry *QueryRegistry,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		sessions:  sessions,
		snapshots: snapshots,
		registry:  registry,
		logger:    logger,
	}
}

// Stream answers one question as an ordered event stream. It returns
// the stream and the session identifier (generated when the caller
// supplied none), which doubles as the cancellation identifier.
func (s *ChatService) Stream(ctx context.Context, req *domain.ChatRequest, synth SynthesisClient, search SearchClient) (<-chan domain.ProgressEvent, string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, "", domain.ErrQuestionRequired
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewQueryID()
	}

	existing, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, "", err
	}
	if existing == nil {
		if err := s.sessions.Create(&domain.Session{ID: sessionID}); err != nil {
			return nil, "", err
		}
	}

	chatCtx := domain.ChatContext{
		TableData: req.Context.TableData,
		History:   req.ConversationHistory,
	}

	// The caller-supplied history wins; otherwise replay what we have
	// stored for the session.
	if len(chatCtx.History) == 0 {
		stored, err := s.sessions.GetMessages(sessionID)
		if err != nil {
			return nil, "", err
		}
		for _, m := range stored {
			chatCtx.History = append(chatCtx.History, domain.Turn{Role: m.Role, Content: m.Content})
		}
	}

	// Keep the latest table text per session so follow-up turns can
	// omit it.
	if strings.TrimSpace(chatCtx.TableData) != "" {
		if err := s.snapshots.Upsert(sessionID, chatCtx.TableData); err != nil {
			s.logger.Warn("failed to store table snapshot", zap.Error(err))
		}
	} else {
		snapshot, err := s.snapshots.Get(sessionID)
		if err != nil {
			s.logger.Warn("failed to load table snapshot", zap.Error(err))
		} else if snapshot != nil {
			chatCtx.TableData = snapshot.TableData
		}
	}

	if err := s.sessions.CreateMessage(&domain.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   req.Question,
	}); err != nil {
		return nil, "", err
	}

	pipeline := NewPipeline(synth, search, s.registry, s.logger)
	events := pipeline.Run(ctx, sessionID, req.Question, chatCtx)

	out := make(chan domain.ProgressEvent)
	go func() {
		defer close(out)

		var answer *domain.ProgressEvent
		for event := range events {
			if event.Type == domain.EventResponse {
				ev := event
				answer = &ev
			}
			select {
			case out <- event:
			case <-ctx.Done():
				// Reader is gone; keep draining so the pipeline can
				// wind down on the same context.
			}
		}

		if answer != nil {
			if err := s.sessions.CreateMessage(&domain.Message{
				SessionID: sessionID,
				Role:      "assistant",
				Content:   answer.Message,
				Source:    answer.Source,
			}); err != nil {
				s.logger.Warn("failed to store assistant message", zap.Error(err))
			}
			if err := s.sessions.Touch(sessionID); err != nil {
				s.logger.Warn("failed to touch session", zap.Error(err))
			}
		}
	}()

	return out, sessionID, nil
}

// Cancel signals the in-flight run for the session identifier, if any
func (s *ChatService) Cancel(sessionID string) bool {
	return s.registry.Cancel(sessionID)
}

// History returns the stored messages for a session
func (s *ChatService) History(sessionID string) ([]*domain.Message, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	return s.sessions.GetMessages(sessionID)
}
