package buckets

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kbforge/kbforge/pkg/middleware"
	"github.com/kbforge/kbforge/pkg/observability"
	"github.com/kbforge/kbforge/pkg/permission"
)

// Handlers provides the bucket HTTP surface
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates bucket handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger.WithComponent("bucket-handlers"),
	}
}

// RegisterRoutes registers bucket routes. Mounted behind RequireAuth.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.List).Methods("GET")
	router.HandleFunc("", h.Create).Methods("POST")
	router.HandleFunc("/{id}", h.Get).Methods("GET")
	router.HandleFunc("/{id}", h.Delete).Methods("DELETE")
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create handles POST /buckets. Only admins create buckets.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !authCtx.IsAdmin() {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	bucket, err := h.service.Create(r.Context(), req.Name, req.Description, authCtx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bucket)
}

// List handles GET /buckets
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	visible, err := h.service.ListVisible(r.Context(), authCtx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visible)
}

// Get handles GET /buckets/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	bucket, err := h.service.Get(r.Context(), mux.Vars(r)["id"], authCtx.User.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bucket)
}

// Delete handles DELETE /buckets/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"], authCtx); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *permission.ValidationError
	var authErr *permission.AuthorizationError
	var notFoundErr *permission.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Message, http.StatusBadRequest)
	case errors.As(err, &authErr):
		http.Error(w, authErr.Message, http.StatusForbidden)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Message, http.StatusNotFound)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "bucket not found", http.StatusNotFound)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("bucket request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
