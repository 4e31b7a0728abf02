package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wardenhq/warden/internal/platform/httpx"
	"github.com/wardenhq/warden/internal/shared"
)

// Handler exposes permission resolution and mutation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	validate *validator.Validate
	mw       Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, mw Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mw:       mw,
	}
}

// MountRoleRoutes registers the role-scoped permission routes. The router
// mounts these under the same subtree as the role lifecycle handler.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("role.view", "permission.manage"))
		r.Get("/{roleID}/permissions", h.directPermissions)
		r.Get("/{roleID}/permissions/effective", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("permission.manage"))
		r.Post("/{roleID}/permissions", h.applyBulk)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll("role.edit"))
		r.Put("/{roleID}/parent", h.setParent)
	})
}

// MountCatalogRoutes registers the permission catalog routes.
func (h *Handler) MountCatalogRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("permission.view", "permission.manage"))
		r.Get("/", h.listCatalog)
	})
}

type applyBulkRequest struct {
	Grant  []string `json:"grant" validate:"dive,max=100"`
	Revoke []string `json:"revoke" validate:"dive,max=100"`
}

type setParentRequest struct {
	ParentID *int64 `json:"parent_id"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleIDParam(w, r)
	if !ok {
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": perms})
}

func (h *Handler) directPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleIDParam(w, r)
	if !ok {
		return
	}
	perms, err := h.service.DirectPermissions(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": perms})
}

func (h *Handler) applyBulk(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	roleID, roleOK := h.roleIDParam(w, r)
	if !roleOK {
		return
	}
	var req applyBulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ApplyBulk(r.Context(), roleID, req.Grant, req.Revoke, actorID)
	if err != nil {
		h.logger.Error("apply permission batch", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) setParent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	roleID, roleOK := h.roleIDParam(w, r)
	if !roleOK {
		return
	}
	var req setParentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.service.SetParent(r.Context(), roleID, req.ParentID, actorID); err != nil {
		h.logger.Error("set role parent", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permission catalog", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) roleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role id must be an integer")
		return 0, false
	}
	return id, true
}
