package rescuers

import (
	"net/http"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRescuerNotFound, Status: http.StatusNotFound, Message: ErrRescuerNotFound.Error()},
	{Error: ErrEmailExists, Status: http.StatusConflict, Message: ErrEmailExists.Error()},
	{Error: ErrRescuerBusy, Status: http.StatusConflict, Message: ErrRescuerBusy.Error()},
	{Error: ErrInvalidAvailability, Status: http.StatusBadRequest, Message: ErrInvalidAvailability.Error()},
	{Error: ErrInvalidDepartment, Status: http.StatusBadRequest, Message: ErrInvalidDepartment.Error()},
	{Error: ErrInvalidRole, Status: http.StatusBadRequest, Message: ErrInvalidRole.Error()},
	{Error: ErrInvalidLocation, Status: http.StatusBadRequest, Message: ErrInvalidLocation.Error()},
	{Error: ErrForbidden, Status: http.StatusForbidden, Message: ErrForbidden.Error()},
	{Error: ErrPasswordTooLong, Status: http.StatusBadRequest, Message: ErrPasswordTooLong.Error()},
}

// Handler handles HTTP requests for the rescuer registry.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new rescuers handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers routes available to any authenticated role.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rescuers", h.List)
	r.Get("/rescuers/{id}", h.Get)
	r.Put("/rescuers/{id}/location", h.UpdateLocation)
	r.Put("/rescuers/{id}/availability", h.SetAvailability)
}

// RegisterOfficerRoutes registers routes that require officer role.
func (h *Handler) RegisterOfficerRoutes(r chi.Router) {
	r.Post("/rescuers", h.Register)
}

// RegisterRequest represents rescuer registration request body.
type RegisterRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Department string `json:"department" validate:"required"`
	VehicleID  string `json:"vehicleId" validate:"max=100"`
	Phone      string `json:"phone" validate:"max=50"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,password"`
	Role       string `json:"role" validate:"omitempty,oneof=rescuer"`
}

// Register handles POST /rescuers.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	rescuer, err := h.service.Register(r.Context(), RegisterInput{
		Name:       req.Name,
		Department: domain.Department(req.Department),
		VehicleID:  req.VehicleID,
		Phone:      req.Phone,
		Email:      req.Email,
		Password:   req.Password,
		Role:       domain.Role(req.Role),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, rescuer)
}

// List handles GET /rescuers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// Get handles GET /rescuers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rescuer, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, rescuer)
}

// LocationRequest represents a location update.
type LocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// UpdateLocation handles PUT /rescuers/{id}/location.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	rescuer, err := h.service.UpdateLocation(r.Context(),
		chi.URLParam(r, "id"),
		domain.Location{Lat: *req.Lat, Lng: *req.Lng},
		httputil.GetActor(r.Context()),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, rescuer)
}

// AvailabilityRequest represents a manual availability change.
type AvailabilityRequest struct {
	AvailabilityStatus string `json:"availabilityStatus" validate:"required"`
}

// SetAvailability handles PUT /rescuers/{id}/availability.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	rescuer, err := h.service.SetAvailability(r.Context(),
		chi.URLParam(r, "id"),
		domain.Availability(req.AvailabilityStatus),
		httputil.GetActor(r.Context()),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, rescuer)
}
