package permission

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kbforge/kbforge/pkg/middleware"
	"github.com/kbforge/kbforge/pkg/observability"
)

// Handlers provides the HTTP surface of one permission engine. Domains mount
// the same three routes under their own prefix; singleton domains set a
// default resource id so callers can omit the query parameter.
type Handlers struct {
	engine            *Engine
	defaultResourceID string
	logger            *observability.Logger
}

// NewHandlers creates permission handlers for one engine
func NewHandlers(engine *Engine, defaultResourceID string, logger *observability.Logger) *Handlers {
	return &Handlers{
		engine:            engine,
		defaultResourceID: defaultResourceID,
		logger:            logger.WithComponent("permission-handlers").WithField("namespace", engine.Namespace()),
	}
}

// RegisterRoutes registers permission routes on the router. Callers mount the
// router behind RequireAuth.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.ListGrants).Methods("GET")
	router.HandleFunc("/permissions", h.SetPermission).Methods("POST")
	router.HandleFunc("/permissions/resolve", h.Resolve).Methods("GET")
}

// ListGrants handles GET /permissions?resourceId=R
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetAuthContext(r.Context()); !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	resourceID := h.resourceID(r)
	if resourceID == "" {
		http.Error(w, "resourceId is required", http.StatusBadRequest)
		return
	}

	grants, err := h.engine.Grants(r.Context(), resourceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if grants == nil {
		grants = []Grant{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(grants)
}

// SetPermission handles POST /permissions
func (h *Handlers) SetPermission(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ResourceID == "" {
		req.ResourceID = h.defaultResourceID
	}

	actor := Actor{
		UserID:    authCtx.User.ID,
		Email:     authCtx.User.Email,
		IPAddress: authCtx.IPAddress,
	}

	if err := h.engine.SetPermission(r.Context(), req, actor); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Resolve handles GET /permissions/resolve?resourceId=R
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	resourceID := h.resourceID(r)
	if resourceID == "" {
		http.Error(w, "resourceId is required", http.StatusBadRequest)
		return
	}

	level, err := h.engine.Resolve(r.Context(), authCtx.User.ID, resourceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]Level{"level": level})
}

func (h *Handlers) resourceID(r *http.Request) string {
	if id := r.URL.Query().Get("resourceId"); id != "" {
		return id
	}
	return h.defaultResourceID
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var authErr *AuthorizationError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Message, http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Message, http.StatusNotFound)
	case errors.As(err, &authErr):
		http.Error(w, authErr.Message, http.StatusForbidden)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("permission request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
