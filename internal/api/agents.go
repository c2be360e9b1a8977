package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lorekeeper/internal/agentprompt"
)

// ListAgents handles GET /agents.
//
//	@Summary		List catalog agents
//	@Tags			agents
//	@Produce		json
//	@Success		200	{object}	map[string][]AgentDetail
//	@Router			/agents [get]
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		writeError(w, "list agents", err)
		return
	}
	out := make([]AgentDetail, len(agents))
	for i, a := range agents {
		out[i] = agentDetail(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

// GetAgent handles GET /agents/{id}.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.Agent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agentDetail(a))
}

// PutAgentPrompt handles PUT /agents/{id}/prompt. The body is a loose prompt
// configuration; it is normalized before storing, and a configuration
// equivalent to the default clears the override.
//
//	@Summary		Replace an agent's prompt configuration
//	@Tags			agents
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string	true	"Agent id"
//	@Success		200		{object}	AgentDetail
//	@Failure		404		{object}	errResponse
//	@Router			/agents/{id}/prompt [put]
func (h *Handler) PutAgentPrompt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	cfg := agentprompt.Normalize(generic)
	var stored []byte
	if !agentprompt.IsDefault(cfg) {
		stored, err = json.Marshal(cfg)
		if err != nil {
			writeError(w, "encode agent prompt", err)
			return
		}
	}

	id := chi.URLParam(r, "id")
	if err := h.agents.SetAgentPrompt(r.Context(), id, stored); err != nil {
		writeError(w, "set agent prompt", err)
		return
	}
	a, err := h.agents.Agent(r.Context(), id)
	if err != nil {
		writeError(w, "get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agentDetail(a))
}
