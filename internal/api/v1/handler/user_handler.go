package handler

import (
	"encoding/json"
	"net/http"

	"skechum/internal/api/v1/dto"
	"skechum/internal/middleware"
	"skechum/internal/model"
	"skechum/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService service.UserService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewUserHandler(userService service.UserService, v *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/users/me", authMw(http.HandlerFunc(h.handleUsers)))
}

func (h *UserHandler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createUser(w, r)
	case http.MethodGet:
		h.getUser(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
	}
}

func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req dto.UserCreateDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed: "+err.Error())
		return
	}

	user, created, err := h.userService.Create(r.Context(), &model.User{
		UserID:    userID,
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	_, balance, err := h.userService.GetWithBalance(r.Context(), user.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toUserDTO(user, balance))
}

func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	user, balance, err := h.userService.GetWithBalance(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, balance))
}

func toUserDTO(u *model.User, balance int) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Balance:   balance,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
