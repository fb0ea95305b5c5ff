package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appassistant "github.com/propcheck/inspections/internal/application/assistant"
	appcomponents "github.com/propcheck/inspections/internal/application/components"
	appinspections "github.com/propcheck/inspections/internal/application/inspections"
	appissues "github.com/propcheck/inspections/internal/application/issues"
	appjobs "github.com/propcheck/inspections/internal/application/jobs"
	appmedia "github.com/propcheck/inspections/internal/application/media"
	"github.com/propcheck/inspections/internal/domain/assistant"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domissues "github.com/propcheck/inspections/internal/domain/issues"
	domjobs "github.com/propcheck/inspections/internal/domain/jobs"
	"github.com/propcheck/inspections/internal/middleware"
)

const maxPhotoBytes = 20 << 20

// Router is the gateway facade: every handler resolves the caller's
// security context, delegates to an application service, and encodes the
// result. Authorization itself happens inside the services.
type Router struct {
	inspections *appinspections.Service
	components  *appcomponents.Service
	issues      *appissues.Service
	jobs        *appjobs.Service
	media       *appmedia.Service
	assistant   *appassistant.Service
	logger      *slog.Logger
}

type Deps struct {
	Inspections *appinspections.Service
	Components  *appcomponents.Service
	Issues      *appissues.Service
	Jobs        *appjobs.Service
	Media       *appmedia.Service
	Assistant   *appassistant.Service
	Logger      *slog.Logger
}

func NewRouter(deps Deps, authBindings []middleware.KeyBinding, ratelimitCapacity, ratelimitRefill int, healthCheckers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{
		inspections: deps.Inspections,
		components:  deps.Components,
		issues:      deps.Issues,
		jobs:        deps.Jobs,
		media:       deps.Media,
		assistant:   deps.Assistant,
		logger:      deps.Logger,
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(deps.Logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(authBindings))
	mux.Use(middleware.RateLimitMiddleware(ratelimitCapacity, ratelimitRefill))

	mux.Get("/health", middleware.HealthHandler(healthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/inspections", r.wrap(r.handleListInspections))
		rt.Post("/inspections", r.wrap(r.handleCreateInspection))
		rt.Get("/inspections/{id}", r.wrap(r.handleGetInspection))
		rt.Get("/inspections/{id}/rooms", r.wrap(r.handleListRooms))
		rt.Post("/inspections/{id}/rooms", r.wrap(r.handleAddRoom))
		rt.Post("/inspections/{id}/finalize", r.wrap(r.handleFinalize))
		rt.Post("/inspections/{id}/jobs", r.wrap(r.handleStartJob))
		rt.Get("/inspections/{id}/jobs", r.wrap(r.handleListJobs))
		rt.Get("/inspections/{id}/jobs/latest", r.wrap(r.handleJobStatus))

		rt.Get("/rooms/{id}/components", r.wrap(r.handleListComponents))
		rt.Post("/rooms/{id}/components", r.wrap(r.handleAddComponent))

		rt.Patch("/components/{id}", r.wrap(r.handleEditComponent))
		rt.Get("/components/{id}/issues", r.wrap(r.handleListIssues))
		rt.Post("/components/{id}/issues", r.wrap(r.handleCreateIssue))
		rt.Post("/components/{id}/photos", r.wrap(r.handleUploadPhoto))

		rt.Post("/issues/{id}/resolve", r.wrap(r.handleResolveIssue))

		rt.Post("/chat", r.wrap(r.handleChat))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var f *faults.Fault
			if errors.As(err, &f) {
				writeError(w, f.HTTPStatus(), f.Kind, f.Message)
				return
			}
			if errors.Is(err, assistant.ErrQuotaExceeded) {
				writeError(w, http.StatusTooManyRequests, faults.KindBillingQuotaExceeded, "assistant quota exceeded")
				return
			}
			r.logger.Error("unhandled request error", "path", req.URL.Path, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		}
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// caller resolves the authenticated identity; the auth middleware
// guarantees it for everything under /v1.
func caller(req *http.Request) (*authz.SecurityContext, error) {
	sc := middleware.GetSecurityContext(req.Context())
	if sc == nil {
		return nil, faults.Unauthenticated("missing caller identity")
	}
	return sc, nil
}

func pathID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateEntityID(id); err != nil {
		return "", faults.InvalidState(err.Error())
	}
	return id, nil
}

// GET /v1/inspections?page=&page_size=
func (r *Router) handleListInspections(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.inspections.List(req.Context(), sc, middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/inspections
func (r *Router) handleCreateInspection(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	var body struct {
		InspectionType  string `json:"inspection_type"`
		PropertyAddress string `json:"property_address"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	insp, err := r.inspections.Create(req.Context(), sc, appinspections.CreateInspectionCommand{
		InspectionType:  middleware.SanitizeString(body.InspectionType),
		PropertyAddress: middleware.SanitizeString(body.PropertyAddress),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, insp)
}

// GET /v1/inspections/{id}
func (r *Router) handleGetInspection(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	insp, err := r.inspections.Get(req.Context(), sc, dominsp.InspectionID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, insp)
}

// GET /v1/inspections/{id}/rooms
func (r *Router) handleListRooms(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	rooms, err := r.inspections.Rooms(req.Context(), sc, dominsp.InspectionID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rooms)
}

// POST /v1/inspections/{id}/rooms
func (r *Router) handleAddRoom(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Name      string `json:"name"`
		RoomType  string `json:"room_type"`
		SortOrder int    `json:"sort_order"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	room, err := r.inspections.AddRoom(req.Context(), sc, dominsp.InspectionID(id),
		middleware.SanitizeString(body.Name), middleware.SanitizeString(body.RoomType), body.SortOrder)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, room)
}

// POST /v1/inspections/{id}/finalize
func (r *Router) handleFinalize(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	insp, err := r.inspections.Finalize(req.Context(), sc, dominsp.InspectionID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, insp)
}

// POST /v1/inspections/{id}/jobs
// Body: {"type": "analyze_inspection", "idempotency_key": "..."}
func (r *Router) handleStartJob(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Type           string `json:"type"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}
	if err := middleware.ValidateJobType(body.Type); err != nil {
		return faults.InvalidState(err.Error())
	}

	job, err := r.jobs.StartJob(req.Context(), sc, dominsp.InspectionID(id), domjobs.Type(body.Type), body.IdempotencyKey)
	if err != nil {
		return err
	}
	middleware.IncrementJobs()
	return writeJSON(w, http.StatusAccepted, job)
}

// GET /v1/inspections/{id}/jobs
func (r *Router) handleListJobs(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	jobs, err := r.jobs.ListJobs(req.Context(), sc, dominsp.InspectionID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, jobs)
}

// GET /v1/inspections/{id}/jobs/latest
func (r *Router) handleJobStatus(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	job, err := r.jobs.GetStatus(req.Context(), sc, dominsp.InspectionID(id))
	if err != nil {
		return err
	}
	if job == nil {
		return faults.NotFound("job", "latest")
	}
	return writeJSON(w, http.StatusOK, job)
}

// GET /v1/rooms/{id}/components
func (r *Router) handleListComponents(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	comps, err := r.inspections.Components(req.Context(), sc, dominsp.RoomID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, comps)
}

// POST /v1/rooms/{id}/components
func (r *Router) handleAddComponent(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	comp, err := r.inspections.AddComponent(req.Context(), sc, dominsp.RoomID(id), middleware.SanitizeString(body.Name))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, comp)
}

// PATCH /v1/components/{id}
// Body: {"condition": {...}, "overview_comment": "...", "expected_version": N}
func (r *Router) handleEditComponent(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Condition       *appcomponents.ConditionPatch `json:"condition"`
		OverviewComment *string                       `json:"overview_comment"`
		ExpectedVersion int64                         `json:"expected_version"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	comp, err := r.components.ApplyEdit(req.Context(), sc, dominsp.ComponentID(id), appcomponents.EditCommand{
		Condition:       body.Condition,
		OverviewComment: body.OverviewComment,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, comp)
}

// GET /v1/components/{id}/issues?include_rejected=&view=
// view: "" (all non-rejected), "ai_pending", "human"
func (r *Router) handleListIssues(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}

	compID := dominsp.ComponentID(id)
	switch req.URL.Query().Get("view") {
	case "ai_pending":
		list, err := r.issues.ActiveAISuggestions(req.Context(), sc, compID)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, list)
	case "human":
		list, err := r.issues.HumanFindings(req.Context(), sc, compID)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, list)
	default:
		includeRejected, _ := strconv.ParseBool(req.URL.Query().Get("include_rejected"))
		list, err := r.issues.List(req.Context(), sc, compID, includeRejected)
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, list)
	}
}

// POST /v1/components/{id}/issues
func (r *Router) handleCreateIssue(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Type     string `json:"type"`
		Severity string `json:"severity"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	issue, err := r.issues.CreateHumanIssue(req.Context(), sc, appissues.CreateHumanIssueCommand{
		ComponentID: dominsp.ComponentID(id),
		Type:        middleware.SanitizeString(body.Type),
		Severity:    domissues.Severity(body.Severity),
		Notes:       middleware.SanitizeString(body.Notes),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, issue)
}

// POST /v1/components/{id}/photos
// multipart form with a "photo" file part
func (r *Router) handleUploadPhoto(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}

	if err := req.ParseMultipartForm(maxPhotoBytes); err != nil {
		return faults.InvalidState(fmt.Sprintf("parsing multipart form: %v", err))
	}
	file, header, err := req.FormFile("photo")
	if err != nil {
		return faults.InvalidState("missing photo file part")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := middleware.ValidateContentType(contentType); err != nil {
		return faults.InvalidState(err.Error())
	}
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
	if err != nil {
		return err
	}

	photo, err := r.media.UploadPhoto(req.Context(), sc, dominsp.ComponentID(id), header.Filename, contentType, data)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, photo)
}

// POST /v1/issues/{id}/resolve
// Body: {"action": "accept"|"reject", "override": {"severity": "...", "notes": "..."}}
func (r *Router) handleResolveIssue(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		Action   string                  `json:"action"`
		Override *appissues.OverrideData `json:"override"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}

	res, err := r.issues.ResolveAIIssue(req.Context(), sc, domissues.IssueID(id), body.Action, body.Override)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/chat
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) error {
	sc, err := caller(req)
	if err != nil {
		return err
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return faults.InvalidState(fmt.Sprintf("decoding request body: %v", err))
	}
	if body.Message == "" {
		return faults.InvalidState("message is required")
	}

	reply, err := r.assistant.SendMessage(req.Context(), sc, middleware.SanitizeString(body.Message))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
