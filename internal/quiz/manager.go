package quiz

import (
	"context"
	"errors"
	"strings"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/llm"
	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var quizThreadsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cognify_quiz_threads_created_total",
	Help: "Quiz threads created (idempotent re-creations excluded).",
})

// Manager creates quiz threads and drives the question/answer/evaluation
// sequence. Turn mechanics (serialization, streaming, commits) are shared
// with chat through the orchestrator.
type Manager struct {
	store   store.Store
	gateway *llm.Gateway
	orch    *chat.Orchestrator
	log     *logger.Logger
}

// NewManager wires a quiz thread manager.
func NewManager(st store.Store, gateway *llm.Gateway, orch *chat.Orchestrator, log *logger.Logger) *Manager {
	return &Manager{store: st, gateway: gateway, orch: orch, log: log}
}

// StartQuiz creates (or returns) the quiz thread anchored at the given
// assistant message. The caller's userID must own the parent session; the
// check runs before any lookup or mutation. Creation is keyed by
// (sessionID, anchorMessageID): calling it again returns the existing
// thread id without touching its context or seed.
func (m *Manager) StartQuiz(ctx context.Context, userID, sessionID, anchorMessageID string) (string, error) {
	if sessionID == "" || anchorMessageID == "" {
		return "", apperrors.NewInvalidInputError("session_id and message_id are required")
	}

	parent, err := m.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return "", apperrors.NewDomainNotFoundError("session not found")
		}
		return "", err
	}
	if parent.OwnerUserID != userID {
		// Absence and denial look the same to the caller.
		return "", apperrors.NewDomainNotFoundError("session not found")
	}
	if parent.IsQuizThread() {
		return "", apperrors.NewInvalidInputError("quiz threads cannot be branched further")
	}

	if existing, ok, err := m.store.FindQuizByAnchor(sessionID, anchorMessageID); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}

	asm, err := AssembleContext(m.store, sessionID, anchorMessageID)
	if err != nil {
		return "", err
	}

	thread, err := m.store.CreateQuizThread(store.QuizSpec{
		SessionID:       sessionID,
		OwnerUserID:     parent.OwnerUserID,
		AnchorMessageID: anchorMessageID,
		AnchorMessage:   asm.Anchor,
		PrevContext:     asm.PrevContext,
		Seed:            asm.Seed,
	})
	if err != nil {
		return "", err
	}
	quizThreadsCreated.Inc()
	m.log.Info("quiz thread created",
		"quiz_id", thread.ID,
		"session_id", sessionID,
		"anchor_message_id", anchorMessageID,
		"prev_context_len", len(asm.PrevContext),
		"seed_empty", asm.SeedEmpty,
	)
	return thread.ID, nil
}

// AskQuestion streams a probing long-answer question about the thread's
// anchor text, optionally focused on a highlighted excerpt, and commits it
// as an assistant message.
func (m *Manager) AskQuestion(ctx context.Context, quizID, highlight string) (<-chan chat.Event, error) {
	thread, err := m.getThread(quizID)
	if err != nil {
		return nil, err
	}
	source := thread.AnchorMessage.Text

	return m.orch.Run(ctx, chat.TurnRequest{
		EntityID: quizID,
		Kind:     "quiz_question",
		Open: func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error) {
			return m.gateway.QuizQuestion(ctx, source, highlight, entity.FullHistory(), m.gateway.Defaults())
		},
	})
}

// SubmitAnswer appends the learner's answer and streams the qualitative
// evaluation. A blank answer is rejected before any store mutation or
// model call.
func (m *Manager) SubmitAnswer(ctx context.Context, quizID, answerText string) (<-chan chat.Event, error) {
	if strings.TrimSpace(answerText) == "" {
		return nil, apperrors.NewInvalidInputError("answer text must not be empty")
	}
	if _, err := m.getThread(quizID); err != nil {
		return nil, err
	}

	return m.orch.Run(ctx, chat.TurnRequest{
		EntityID: quizID,
		Kind:     "quiz_evaluation",
		UserText: answerText,
		Open: func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error) {
			return m.gateway.EvaluateAnswer(ctx, entity.FullHistory(), m.gateway.Defaults())
		},
	})
}

// Get returns a quiz thread snapshot.
func (m *Manager) Get(quizID string) (*models.ConversationEntity, error) {
	return m.getThread(quizID)
}

func (m *Manager) getThread(quizID string) (*models.ConversationEntity, error) {
	entity, err := m.store.Get(quizID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return nil, apperrors.NewDomainNotFoundError("quiz thread not found")
		}
		return nil, err
	}
	if !entity.IsQuizThread() {
		return nil, apperrors.NewInvalidInputError("entity is not a quiz thread")
	}
	return entity, nil
}
