package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/notevault/vaultbridge/src/chatstore"
)

type createChatRequest struct {
	Title string `json:"title,omitempty"`
}

type chatResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type chatSummaryResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

type turnRequest struct {
	ID       string              `json:"id"`
	Messages []chatstore.Message `json:"messages"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if r.Body != nil {
		// An empty body is fine; the title defaults server-side.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		internalError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, chatResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListConversations(r.Context())
	if err != nil {
		internalError(w, s.logger, err)
		return
	}

	out := make([]chatSummaryResponse, 0, len(summaries))
	for _, c := range summaries {
		out = append(out, chatSummaryResponse{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: c.MessageCount,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	// Unknown ids yield an empty list, not a 404; the store contract
	// deliberately does not distinguish the two.
	msgs, err := s.store.GetMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		internalError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" {
		badRequest(w, "title is required")
		return
	}

	if err := s.store.RenameConversation(r.Context(), r.PathValue("id"), req.Title); err != nil {
		internalError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		internalError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTurn runs one streamed turn. The response is newline-delimited JSON
// fragments, terminated by a done marker (or an error marker distinct from
// normal completion).
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		badRequest(w, "id is required")
		return
	}

	userText := lastUserText(req.Messages)
	if userText == "" {
		badRequest(w, "no user message in request")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, s.logger, errors.New("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	forward := func(part chatstore.MessagePart) error {
		if err := enc.Encode(part); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := s.sessions.RunTurn(r.Context(), req.ID, userText, forward)
	if err != nil {
		// The stream is already committed; the error marker is the only
		// way left to signal failure, and it is distinct from done.
		_ = enc.Encode(map[string]string{"type": "error", "message": err.Error()})
		flusher.Flush()
		return
	}

	done := map[string]any{"type": "done", "conversationId": result.ConversationID}
	if result.Retitled {
		done["title"] = result.Title
	}
	if result.Usage != nil {
		done["usage"] = result.Usage
	}
	_ = enc.Encode(done)
	flusher.Flush()
}

// lastUserText extracts the trailing user message's text from the request
// history. Only the text parts count; the authoritative prior history comes
// from the store, not from the client.
func lastUserText(messages []chatstore.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chatstore.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
