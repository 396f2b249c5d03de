package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"cognify/backend/internal/llm"
	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"
)

// DefaultFallbackText is committed in place of an empty completion so a
// provider that streams zero fragments never produces an empty assistant
// message.
const DefaultFallbackText = "I don't have a response for that. Could you rephrase?"

// turnState tracks where a turn is in its lifecycle. Transitions are
// strictly Idle -> AwaitingModel -> Committing -> Idle, with any failure in
// AwaitingModel returning straight to Idle.
type turnState string

const (
	stateIdle          turnState = "idle"
	stateAwaitingModel turnState = "awaiting_model"
	stateCommitting    turnState = "committing"
)

// StreamOpener starts the model call for a turn, given the entity snapshot
// that already includes the turn's user message (when there is one).
type StreamOpener func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error)

// TurnRequest describes one assistant turn to run against an entity.
type TurnRequest struct {
	EntityID string
	// Kind labels the turn for logs and metrics ("chat", "quiz_question",
	// "quiz_evaluation").
	Kind string
	// UserText, when non-empty, is appended as a user message before the
	// model call begins, so a crash mid-stream never loses the input.
	UserText string
	// Open starts the model stream.
	Open StreamOpener
	// GenerateTitle requests first-turn title generation for sessions.
	GenerateTitle bool
}

// Orchestrator coordinates chat and quiz turns: one in-flight turn per
// entity, streaming forwarded to the caller, final transcript committed
// exactly once.
type Orchestrator struct {
	store        store.Store
	gateway      *llm.Gateway
	log          *logger.Logger
	guard        *turnGuard
	fallbackText string
}

// NewOrchestrator wires the orchestrator. fallbackText may be empty to use
// DefaultFallbackText.
func NewOrchestrator(st store.Store, gateway *llm.Gateway, log *logger.Logger, fallbackText string) *Orchestrator {
	if fallbackText == "" {
		fallbackText = DefaultFallbackText
	}
	return &Orchestrator{
		store:        st,
		gateway:      gateway,
		log:          log,
		guard:        newTurnGuard(),
		fallbackText: fallbackText,
	}
}

// ChatTurn runs one tutoring turn on a session: commit the user message,
// stream the assistant reply, commit it, and generate a title on the
// session's first exchange. The returned channel delivers fragments and
// exactly one terminal event.
func (o *Orchestrator) ChatTurn(ctx context.Context, sessionID, text string) (<-chan Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInvalidInputError("message text must not be empty")
	}
	return o.Run(ctx, TurnRequest{
		EntityID:      sessionID,
		Kind:          "chat",
		UserText:      text,
		GenerateTitle: true,
		Open: func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error) {
			return o.gateway.ChatReply(ctx, entity.FullHistory(), o.gateway.Defaults())
		},
	})
}

// Run executes a turn request. Validation and the user-message commit
// happen synchronously; the model call and assistant commit run in the
// background, reported over the event channel.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	if !o.guard.acquire(req.EntityID) {
		turnsRejected.Inc()
		return nil, apperrors.NewTurnInProgressError(req.EntityID)
	}

	entity, err := o.store.Get(req.EntityID)
	if err != nil {
		o.guard.release(req.EntityID)
		return nil, translateStoreErr(err)
	}

	var userMsg *models.Message
	if req.UserText != "" {
		msg, err := o.store.Append(req.EntityID, models.RoleUser, req.UserText)
		if err != nil {
			o.guard.release(req.EntityID)
			return nil, translateStoreErr(err)
		}
		userMsg = &msg
		// Re-read so the opener sees the user message in history.
		entity, err = o.store.Get(req.EntityID)
		if err != nil {
			o.guard.release(req.EntityID)
			return nil, translateStoreErr(err)
		}
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer o.guard.release(req.EntityID)
		o.runTurn(ctx, req, entity, userMsg, events)
	}()
	return events, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, req TurnRequest, entity *models.ConversationEntity, userMsg *models.Message, events chan<- Event) {
	state := stateAwaitingModel
	turnsStarted.WithLabelValues(req.Kind).Inc()
	log := o.log.With("entity_id", req.EntityID, "kind", req.Kind)

	stream, err := req.Open(ctx, entity)
	if err != nil {
		turnsFailed.WithLabelValues(req.Kind).Inc()
		log.LogError(err, "model call failed to start", "state", string(state))
		events <- Event{Type: EventError, Err: apperrors.NewProviderError(err.Error())}
		return
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// No partial assistant message is committed; fragments already
			// delivered are the caller's concern.
			turnsFailed.WithLabelValues(req.Kind).Inc()
			log.LogError(err, "model stream failed", "state", string(state), "buffered_bytes", buf.Len())
			events <- Event{Type: EventError, Err: apperrors.NewProviderError(err.Error())}
			return
		}
		buf.WriteString(fragment)
		fragmentsForwarded.Inc()
		events <- Event{Type: EventFragment, Fragment: fragment}
	}

	state = stateCommitting
	text := buf.String()
	if strings.TrimSpace(text) == "" {
		log.Warn("empty completion, committing fallback text", "state", string(state))
		text = o.fallbackText
	}

	assistantMsg, err := o.store.Append(req.EntityID, models.RoleAssistant, text)
	if err != nil {
		turnsFailed.WithLabelValues(req.Kind).Inc()
		log.LogError(err, "failed to commit assistant message", "state", string(state))
		events <- Event{Type: EventError, Err: translateStoreErr(err)}
		return
	}

	title := entity.Title
	if req.GenerateTitle && title == "" && userMsg != nil {
		title = o.generateTitle(ctx, req.EntityID, userMsg.Text, text, log)
	}

	turnsCompleted.WithLabelValues(req.Kind).Inc()
	events <- Event{
		Type:             EventDone,
		UserMessage:      userMsg,
		AssistantMessage: &assistantMsg,
		Title:            title,
	}
}

// generateTitle runs title generation synchronously during Committing. A
// failure leaves the title unset; the turn itself is already committed and
// stays successful.
func (o *Orchestrator) generateTitle(ctx context.Context, entityID, userText, assistantText string, log *logger.Logger) string {
	title, err := o.gateway.Title(ctx, userText, assistantText, o.gateway.Defaults())
	if err != nil {
		log.LogError(err, "title generation failed, leaving title unset")
		return ""
	}
	if title == "" {
		return ""
	}
	if err := o.store.SetTitle(entityID, title); err != nil {
		log.LogError(err, "failed to store generated title")
		return ""
	}
	return title
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrEntityNotFound):
		return apperrors.NewDomainNotFoundError("conversation not found")
	case errors.Is(err, store.ErrMessageNotFound):
		return apperrors.NewDomainNotFoundError("message not found")
	case errors.Is(err, store.ErrUserNotFound):
		return apperrors.NewDomainNotFoundError("user not found")
	case errors.Is(err, store.ErrInvalidRole):
		return apperrors.NewInvalidInputError("invalid message role")
	default:
		return err
	}
}
