package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/session"
	"go.uber.org/zap"
)

// NotesDeps carries the services the notes handlers need.
type NotesDeps struct {
	Quests *quest.Store
	SM     *session.Manager
	Logger *zap.Logger
}

type notesRequest struct {
	QuestID string `json:"quest_id"`
	Notes   string `json:"notes"`
}

type notesPush struct {
	QuestID  string `json:"quest_id"`
	Notes    string `json:"notes"`
	Username string `json:"username"`
}

// RegisterNotesHandlers wires the personal-notes relay onto the router.
//
// Players cannot write to shared quest records directly, so their personal
// notes arrive over the socket and the server applies them with its own
// authority, then forwards a copy to the connected GM for visibility.
func RegisterNotesHandlers(r *Router, deps *NotesDeps) {
	r.On("quest_notes", func(ctx context.Context, s *session.Session, payload json.RawMessage) error {
		return handleQuestNotes(ctx, s, payload, deps)
	})
}

func handleQuestNotes(ctx context.Context, s *session.Session, payload json.RawMessage, deps *NotesDeps) error {
	var req notesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode quest_notes: %w", err)
	}
	if req.QuestID == "" {
		return errors.New("quest_notes: missing quest_id")
	}

	q, err := deps.Quests.Get(ctx, req.QuestID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			sendError(s, "quest_notes", "quest not found")
			return nil
		}
		return err
	}

	patch := map[string]interface{}{
		"notes": map[string]interface{}{
			"player": req.Notes,
		},
	}
	if _, err := deps.Quests.Update(ctx, req.QuestID, patch, s.AccountID); err != nil {
		return fmt.Errorf("apply player notes: %w", err)
	}

	deps.Logger.Info("player notes saved",
		zap.String("quest_id", req.QuestID),
		zap.String("quest", q.Title),
		zap.Int64("account_id", s.AccountID),
		zap.String("trace_id", TraceIDFromCtx(ctx)))

	// Ack to the sender.
	sendOK(s, "quest_notes", req.QuestID)

	// Forward to the GM session if one is connected.
	if gm, ok := deps.SM.GM(); ok && gm.AccountID != s.AccountID {
		push, _ := json.Marshal(notesPush{
			QuestID:  req.QuestID,
			Notes:    req.Notes,
			Username: s.Username,
		})
		gm.Send(&session.Packet{Type: "quest_notes_updated", Payload: push})
	}
	return nil
}

func sendOK(s *session.Session, op, questID string) {
	payload, _ := json.Marshal(map[string]string{"op": op, "quest_id": questID})
	s.Send(&session.Packet{Type: "ok", Payload: payload})
}

func sendError(s *session.Session, op, msg string) {
	payload, _ := json.Marshal(map[string]string{"op": op, "error": msg})
	s.Send(&session.Packet{Type: "error", Payload: payload})
}
