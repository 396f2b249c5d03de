package quiz

import (
	"errors"

	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
)

// AssembledContext is everything a new quiz thread inherits from its parent
// session: the pre-trigger history and the seed turns. Concatenating
// PrevContext, the seed and the thread's future turns reproduces the
// parent's history up to the anchor with every entry exactly once.
type AssembledContext struct {
	Anchor      models.Message
	PrevContext []models.HistoryEntry
	// Seed is the triggering user message followed by the anchor, copied
	// into the quiz thread's own transcript.
	Seed []models.Message
	// SeedEmpty marks the fallback where the anchor has no preceding user
	// message: the whole parent history up to and including the anchor
	// went into PrevContext and the seed is deliberately empty. This is an
	// explicit signal, not a silently empty context.
	SeedEmpty bool
}

// AssembleContext derives the quiz context for the given anchor through the
// store's message lookups.
//
// FindMessage resolves the anchor (must be an assistant reply, else
// AnchorNotFound). The nearest user message preceding it, taken as the last
// element of MessagesBefore filtered to user turns, becomes the trigger;
// everything strictly before the trigger becomes PrevContext.
func AssembleContext(st store.Store, sessionID, anchorMessageID string) (*AssembledContext, error) {
	anchor, err := st.FindMessage(sessionID, anchorMessageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return nil, apperrors.NewAnchorNotFoundError("anchor message not found in session")
		}
		return nil, err
	}
	if anchor.Role != models.RoleAssistant {
		return nil, apperrors.NewAnchorNotFoundError("anchor message is not an assistant reply")
	}

	var trigger models.Message
	hasTrigger := false
	userTurns, err := st.MessagesBefore(sessionID, anchorMessageID, models.RoleUser)
	if err != nil {
		return nil, err
	}
	for m := range userTurns {
		trigger = m
		hasTrigger = true
	}

	if !hasTrigger {
		// No triggering user message exists. Fall back to carrying the
		// whole prefix up to and including the anchor as prev_context with
		// an empty seed. Sessions never receive history-only entries, so
		// the message log here is the same sequence as the parent's model
		// history; if that ever changes this fallback must read the
		// history instead.
		prefix, err := st.MessagesBefore(sessionID, anchorMessageID, "")
		if err != nil {
			return nil, err
		}
		var prev []models.HistoryEntry
		for m := range prefix {
			prev = append(prev, m.History())
		}
		prev = append(prev, anchor.History())
		return &AssembledContext{
			Anchor:      anchor,
			PrevContext: prev,
			SeedEmpty:   true,
		}, nil
	}

	before, err := st.MessagesBefore(sessionID, trigger.ID, "")
	if err != nil {
		return nil, err
	}
	var prev []models.HistoryEntry
	for m := range before {
		prev = append(prev, m.History())
	}
	return &AssembledContext{
		Anchor:      anchor,
		PrevContext: prev,
		Seed:        []models.Message{trigger, anchor},
	}, nil
}
