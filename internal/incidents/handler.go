package incidents

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/media"
	"github.com/bissquit/resilio/internal/pkg/ctxlog"
	"github.com/bissquit/resilio/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// basePaths lists the route prefixes incidents are served under.
// The citizen app posts to /emergencies, dispatch tooling uses /incidents.
var basePaths = []string{"/incidents", "/emergencies"}

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: ErrIncidentNotFound.Error()},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest, Message: ErrInvalidStatus.Error()},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest, Message: ErrInvalidSeverity.Error()},
	{Error: ErrInvalidDepartment, Status: http.StatusBadRequest, Message: ErrInvalidDepartment.Error()},
	{Error: ErrInvalidLocation, Status: http.StatusBadRequest, Message: ErrInvalidLocation.Error()},
	{Error: ErrInvalidRescuerID, Status: http.StatusBadRequest, Message: ErrInvalidRescuerID.Error()},
	{Error: ErrIncidentResolved, Status: http.StatusConflict, Message: ErrIncidentResolved.Error()},
	{Error: ErrInvalidTransition, Status: http.StatusConflict, Message: ErrInvalidTransition.Error()},
	{Error: ErrForbidden, Status: http.StatusForbidden, Message: ErrForbidden.Error()},
	{Error: media.ErrStorageDisabled, Status: http.StatusServiceUnavailable, Message: ErrMediaUnavailable.Error()},
}

// Handler handles HTTP requests for incidents.
type Handler struct {
	service        *Service
	store          media.Store
	maxUploadBytes int64
	validator      *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service, store media.Store, maxUploadBytes int64) *Handler {
	if store == nil {
		store = media.Disabled{}
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:        service,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		validator:      httputil.NewValidator(),
	}
}

// RegisterPublicRoutes registers routes that require no authentication.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	for _, base := range basePaths {
		r.Post(base, h.CreateIncident)
	}
}

// RegisterRoutes registers routes available to any authenticated role.
func (h *Handler) RegisterRoutes(r chi.Router) {
	for _, base := range basePaths {
		r.Get(base, h.ListIncidents)
		r.Get(base+"/{id}", h.GetIncident)
		r.Put(base+"/{id}", h.UpdateIncident)
		r.Put(base+"/{id}/resolve", h.ResolveIncident)
	}
}

// RegisterOfficerRoutes registers routes that require officer role.
func (h *Handler) RegisterOfficerRoutes(r chi.Router) {
	for _, base := range basePaths {
		r.Delete(base+"/{id}", h.DeleteIncident)
	}
}

// RegisterAdminRoutes registers routes that require admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/admin/reconcile", h.Reconcile)
}

// CreateIncidentRequest represents the JSON form of an incident report.
type CreateIncidentRequest struct {
	Type            string   `json:"type" validate:"max=100"`
	Description     string   `json:"description" validate:"max=10000"`
	Lat             *float64 `json:"lat" validate:"required"`
	Lng             *float64 `json:"lng" validate:"required"`
	VoiceTranscript *string  `json:"voiceTranscript" validate:"omitempty,max=10000"`
	ImageURL        *string  `json:"imageUrl" validate:"omitempty,url"`
	AudioURL        *string  `json:"audioUrl" validate:"omitempty,url"`
}

// CreateIncident handles POST /incidents. It accepts multipart uploads with
// optional image and audio files, or a JSON body referencing media by URL.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		input CreateIncidentInput
		ok    bool
	)
	if mediaType == "application/json" {
		input, ok = h.decodeJSONReport(w, r)
	} else {
		input, ok = h.decodeMultipartReport(w, r)
	}
	if !ok {
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

func (h *Handler) decodeJSONReport(w http.ResponseWriter, r *http.Request) (CreateIncidentInput, bool) {
	var req CreateIncidentRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return CreateIncidentInput{}, false
	}
	return CreateIncidentInput{
		Type:            req.Type,
		Description:     req.Description,
		Location:        domain.Location{Lat: *req.Lat, Lng: *req.Lng},
		VoiceTranscript: req.VoiceTranscript,
		ImageURL:        req.ImageURL,
		AudioURL:        req.AudioURL,
	}, true
}

func (h *Handler) decodeMultipartReport(w http.ResponseWriter, r *http.Request) (CreateIncidentInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return CreateIncidentInput{}, false
		}
		httputil.Error(w, http.StatusBadRequest, "invalid multipart form")
		return CreateIncidentInput{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	lat, latErr := parseCoordinate(r.FormValue("lat"))
	lng, lngErr := parseCoordinate(r.FormValue("lng"))
	if latErr != nil || lngErr != nil {
		httputil.Error(w, http.StatusBadRequest, "lat and lng are required numbers")
		return CreateIncidentInput{}, false
	}

	input := CreateIncidentInput{
		Type:        r.FormValue("type"),
		Description: r.FormValue("description"),
		Location:    domain.Location{Lat: lat, Lng: lng},
	}
	if transcript := r.FormValue("voiceTranscript"); transcript != "" {
		input.VoiceTranscript = &transcript
	}
	if !input.Location.IsValid() {
		httputil.HandleError(r.Context(), w, ErrInvalidLocation, errorMappings)
		return CreateIncidentInput{}, false
	}

	var err error
	if input.ImageURL, err = h.upload(r, "image", media.KindImage); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return CreateIncidentInput{}, false
	}
	if input.AudioURL, err = h.upload(r, "audio", media.KindAudio); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return CreateIncidentInput{}, false
	}

	return input, true
}

// upload stores the named form file, if present, and returns its URL.
func (h *Handler) upload(r *http.Request, field string, kind media.Kind) (*string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer func() { _ = file.Close() }()

	url, err := h.store.Put(r.Context(), media.Object{
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", field, err)
	}

	ctxlog.FromContext(r.Context()).Debug("media stored", "kind", kind, "url", url, "size", header.Size)
	return &url, nil
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter IncidentFilter

	if v := query.Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		filter.Status = &status
	}
	if v := query.Get("assigned_rescuer_id"); v != "" {
		filter.AssignedRescuerID = &v
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ResolutionDetailsRequest represents the closing report of an incident.
type ResolutionDetailsRequest struct {
	Report     string     `json:"report" validate:"max=10000"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	ResolvedBy string     `json:"resolvedBy" validate:"max=200"`
}

func (req *ResolutionDetailsRequest) toDomain() *domain.ResolutionDetails {
	if req == nil {
		return nil
	}
	return &domain.ResolutionDetails{
		Report:     strings.TrimSpace(req.Report),
		ResolvedAt: req.ResolvedAt,
		ResolvedBy: strings.TrimSpace(req.ResolvedBy),
	}
}

// UpdateIncidentRequest represents a partial incident update.
type UpdateIncidentRequest struct {
	Severity          *string                   `json:"severity"`
	Department        *string                   `json:"department"`
	Status            *string                   `json:"status"`
	AssignedRescuerID *string                   `json:"assignedRescuerId"`
	ResolutionDetails *ResolutionDetailsRequest `json:"resolutionDetails"`
}

// UpdateIncident handles PUT /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if !httputil.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}

	input := UpdateIncidentInput{
		AssignedRescuerID: req.AssignedRescuerID,
		ResolutionDetails: req.ResolutionDetails.toDomain(),
	}
	if req.Severity != nil {
		severity := domain.Severity(*req.Severity)
		input.Severity = &severity
	}
	if req.Department != nil {
		department := domain.Department(*req.Department)
		input.Department = &department
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}

	incident, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), input, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ResolveIncident handles PUT /incidents/{id}/resolve. The body is optional.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	var details *ResolutionDetailsRequest
	if r.ContentLength != 0 {
		details = &ResolutionDetailsRequest{}
		if !httputil.DecodeAndValidate(w, r, h.validator, details) {
			return
		}
	}

	incident, err := h.service.ResolveIncident(r.Context(), chi.URLParam(r, "id"), details.toDomain(), httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteIncident(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"id": id})
}

// Reconcile handles POST /admin/reconcile.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.service.Reconcile(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]int{"repaired": repaired})
}

func parseCoordinate(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("missing coordinate")
	}
	return strconv.ParseFloat(v, 64)
}

func contentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return mime.TypeByExtension(strings.ToLower(path.Ext(header.Filename)))
}
