package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/sse"
)

// Deps are the collaborators behind the routes. Limiter and Events may be nil.
type Deps struct {
	Archive *archive.Service
	Chat    *chat.Assembler
	Agents  AgentStore
	Limiter *ratelimit.Limiter
	Events  *sse.Broker
}

// NewRouter creates a chi router with all API routes mounted. Every route
// requires an authenticated user; all but the event stream are rate limited.
func NewRouter(deps Deps, auth AuthConfig) chi.Router {
	h := NewHandler(deps.Archive, deps.Chat, deps.Agents)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	// SSE stays outside the limiter: one long-lived request per client.
	if deps.Events != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			deps.Events.Stream(w, r, UserFrom(r.Context()))
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(deps.Limiter))

		// Entries.
		r.Get("/entries", h.SearchEntries)
		r.Post("/entries", h.CreateEntry)
		r.Get("/entries/{slug}", h.GetEntry)
		r.Patch("/entries/{slug}", h.UpdateEntry)
		r.Delete("/entries/{slug}", h.DeleteEntry)
		r.Post("/entries/{slug}/edits", h.ApplyEdits)

		// Links.
		r.Post("/links", h.CreateLink)
		r.Delete("/links", h.DeleteLink)

		// Chats.
		r.Get("/chats/{chatID}/pins", h.ListPins)
		r.Delete("/chats/{chatID}/pins", h.ClearChat)
		r.Put("/chats/{chatID}/pins/{slug}", h.Pin)
		r.Delete("/chats/{chatID}/pins/{slug}", h.Unpin)
		r.Post("/chats/{chatID}/system-prompt", h.SystemPrompt)

		// Agents.
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}/prompt", h.PutAgentPrompt)
	})

	return r
}
