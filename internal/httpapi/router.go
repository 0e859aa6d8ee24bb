package httpapi

// #region imports
import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/scuhci/focusmode-backend/internal/config"
)

// #endregion

// #region router

// NewRouter assembles the study API. The browser extension calls it
// cross-origin, so CORS is wide open for GET/POST.
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	if cfg.RLEnabled {
		r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})

	r.Get("/collect", h.Collect)
	r.Get("/onboard", h.Onboard)
	r.Get("/stage", h.Stage)
	r.Get("/categorize", h.Categorize)
	r.Post("/watchtime", h.WatchTime)
	r.Post("/videos", h.Videos)

	return r
}

// #endregion router
