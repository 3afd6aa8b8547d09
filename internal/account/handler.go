package account

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/account/repo"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
)

// Handler exposes account profile and admin endpoints. Authorization is
// applied by the router middleware; handlers only read the authenticated
// account for ownership-sensitive decisions.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	acct, err := h.svc.GetByID(r.Context(), id, false)
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, acct.Public())
}

// UpdateProfileRequest carries a partial profile update. Absent fields
// are left untouched.
type UpdateProfileRequest struct {
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
	Gender   *string `json:"gender"`
	Birthday *string `json:"birthday"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

func (req *UpdateProfileRequest) toUpdate() (repo.ProfileUpdate, error) {
	upd := repo.ProfileUpdate{
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	if req.Gender != nil {
		g := entity.Gender(*req.Gender)
		upd.Gender = &g
	}
	if req.Birthday != nil {
		t, err := time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return upd, &auth.ValidationError{Field: "birthday", Reason: "expected YYYY-MM-DD"}
		}
		upd.Birthday = &t
	}
	return upd, nil
}

// UpdateProfile updates the target account's profile. Non-admins may only
// update their own profile; the ownership middleware enforces that.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	acct, err := h.svc.UpdateProfile(r.Context(), id, upd)
	if err != nil {
		h.logger.Debugw("profile update failed", "account_id", id, "err", err)
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, acct.Public())
}

// List returns a filtered, paged account listing for admins.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.ListFilter{
		Search: q.Get("search"),
		Role:   entity.Role(q.Get("role")),
		Status: entity.Status(q.Get("status")),
		Gender: entity.Gender(q.Get("gender")),
		Sort:   q.Get("sort"),
	}
	if v := q.Get("page"); v != "" {
		f.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("created_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.CreatedFrom = &t
		}
	}
	if v := q.Get("created_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.CreatedTo = &t
		}
	}
	accounts, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.logger.Warnw("account list failed", "err", err)
		auth.WriteError(w, err)
		return
	}
	items := make([]entity.Public, 0, len(accounts))
	for i := range accounts {
		items = append(items, accounts[i].Public())
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  f.Page,
		"limit": f.Limit,
	})
}

// UpdateStatusRequest sets an account's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	acct, err := h.svc.UpdateStatus(r.Context(), id, entity.Status(req.Status))
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, acct.Public())
}

// UpdateRoleRequest sets an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	acct, err := h.svc.UpdateRole(r.Context(), id, entity.Role(req.Role))
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, acct.Public())
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	if err := h.svc.Restore(r.Context(), id); err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]string{"message": "account restored"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		h.logger.Warnw("account stats failed", "err", err)
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	accounts, err := h.svc.Search(r.Context(), keyword, limit)
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	items := make([]entity.Public, 0, len(accounts))
	for i := range accounts {
		items = append(items, accounts[i].Public())
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// BatchUpdateRequest applies a status and/or role change to many accounts.
type BatchUpdateRequest struct {
	IDs    []int64 `json:"ids"`
	Status *string `json:"status"`
	Role   *string `json:"role"`
}

func (h *Handler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	var status *entity.Status
	if req.Status != nil {
		s := entity.Status(*req.Status)
		status = &s
	}
	var role *entity.Role
	if req.Role != nil {
		ro := entity.Role(*req.Role)
		role = &ro
	}
	updated, err := h.svc.BatchUpdate(r.Context(), req.IDs, status, role)
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"updated": updated})
}
