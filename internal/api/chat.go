package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Keyring-Network/groundchat/internal/chat"
)

const (
	messageRequiredError = "Message is required."
	internalErrorBody    = "An error occurred while processing your request."
	maxChatBodyBytes     = 1 << 20
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	LLMOutput string `json:"llmOutput"`
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	w.Header().Set("X-Trace-Id", traceID)

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeJSONStatus(w, map[string]string{"error": messageRequiredError}, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONStatus(w, map[string]string{"error": messageRequiredError}, http.StatusBadRequest)
		return
	}

	resp, err := s.chat.Answer(r.Context(), chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		TraceID:        traceID,
	})
	if errors.Is(err, chat.ErrEmptyMessage) {
		writeJSONStatus(w, map[string]string{"error": messageRequiredError}, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("trace %s: chat request failed: %v", traceID, err)
		http.Error(w, internalErrorBody, http.StatusInternalServerError)
		return
	}
	log.Printf("trace %s: answered from %d sources %v", traceID, len(resp.Sources), resp.Sources)
	writeJSONStatus(w, chatResponse{LLMOutput: resp.Output}, http.StatusOK)
}
