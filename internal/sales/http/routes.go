package saleshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
)

// MountRoutes registers the quotation endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	saveLimiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)

	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/versions", h.handleVersions)
		r.Get("/compare/{otherID}", h.handleCompare)
		r.Post("/preview", h.handlePreview)
		r.Post("/packages", h.handleCreatePackage)
		r.Put("/draft", h.handleSaveDraft)
		r.Post("/save/cancel", h.handleCancelSave)
		r.Group(func(gr chi.Router) {
			gr.Use(saveLimiter)
			gr.Post("/save", h.handleSave)
			gr.Post("/restore", h.handleRestore)
			gr.Post("/reconcile", h.handleReconcile)
		})
	})
}
