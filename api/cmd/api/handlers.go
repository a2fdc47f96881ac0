package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"missionboard/api/internal/dashboard"
	"missionboard/api/internal/domain"
	"missionboard/api/internal/middleware"
	"missionboard/api/internal/models"
	"missionboard/api/internal/outbox"
	"missionboard/api/internal/repos"
	"missionboard/shared/authx"
	"missionboard/shared/httpx"
	"missionboard/shared/orgx"
)

type apiHandlers struct {
	orgs          *repos.OrganizationsRepo
	missions      *repos.MissionsRepo
	notifications *repos.NotificationsRepo
	summary       *dashboard.SummaryReader
	admin         *outbox.AdminService
}

func (h *apiHandlers) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/organizations", h.createOrganization)
	mux.HandleFunc("GET /api/v1/organizations/current", h.currentOrganization)
	mux.HandleFunc("POST /api/v1/organizations/invitations", h.inviteCollaborator)

	mux.HandleFunc("POST /api/v1/workspaces/{id}/archive", h.archiveWorkspace)
	mux.HandleFunc("POST /api/v1/teams/{id}/members", h.addTeamMember)
	mux.HandleFunc("POST /api/v1/mission-templates", h.publishMissionTemplate)

	mux.HandleFunc("POST /api/v1/missions", h.createMission)
	mux.HandleFunc("GET /api/v1/missions", h.listMissions)
	mux.HandleFunc("GET /api/v1/missions/{id}", h.getMission)
	mux.HandleFunc("POST /api/v1/missions/{id}/metrics", h.addMetric)
	mux.HandleFunc("PUT /api/v1/missions/{id}/metrics/{metricID}/target", h.setMetricTarget)
	mux.HandleFunc("POST /api/v1/missions/{id}/checkins", h.recordCheckIn)
	mux.HandleFunc("POST /api/v1/missions/{id}/complete", h.completeMission)

	mux.HandleFunc("GET /api/v1/notifications", h.listNotifications)
	mux.HandleFunc("GET /api/v1/dashboard/summary", h.dashboardSummary)

	adminOnly := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireRole{Role: "outbox-admin"}.Wrap(fn)
	}
	mux.Handle("GET /api/v1/outbox/dead-letters", adminOnly(h.listDeadLetters))
	mux.Handle("POST /api/v1/outbox/dead-letters/reprocess", adminOnly(h.reprocessDeadLetters))
	mux.Handle("POST /api/v1/outbox/dead-letters/{id}/reprocess", adminOnly(h.reprocessDeadLetter))
}

func (h *apiHandlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	org, err := domain.NewOrganization(req.Slug, req.Name)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.orgs.Create(r.Context(), org); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create organization", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"organization_id": org.OrganizationID,
		"slug":            org.Slug,
		"name":            org.Name,
	})
}

func (h *apiHandlers) currentOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return
	}
	record, err := h.orgs.GetByID(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "organization not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load organization", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"organization_id": record.OrganizationID,
		"slug":            record.Slug,
		"name":            record.Name,
	})
}

func (h *apiHandlers) inviteCollaborator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	org, ok := h.loadOrganization(w, r)
	if !ok {
		return
	}
	if err := org.InviteCollaborator(req.Email, req.Role); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.orgs.Save(r.Context(), org); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to record invitation", nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *apiHandlers) archiveWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid workspace id", nil)
		return
	}
	org, ok := h.loadOrganization(w, r)
	if !ok {
		return
	}
	if err := org.ArchiveWorkspace(workspaceID, authSubject(r)); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.orgs.Save(r.Context(), org); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to archive workspace", nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *apiHandlers) addTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid team id", nil)
		return
	}
	var req struct {
		CollaboratorID uuid.UUID `json:"collaborator_id"`
		Role           string    `json:"role"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	org, ok := h.loadOrganization(w, r)
	if !ok {
		return
	}
	if err := org.AddTeamMember(teamID, req.CollaboratorID, req.Role); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.orgs.Save(r.Context(), org); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to add team member", nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *apiHandlers) publishMissionTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	org, ok := h.loadOrganization(w, r)
	if !ok {
		return
	}
	templateID, err := org.PublishMissionTemplate(req.Title)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.orgs.Save(r.Context(), org); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to publish template", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"template_id": templateID})
}

func (h *apiHandlers) createMission(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return
	}
	var req struct {
		WorkspaceID uuid.UUID `json:"workspace_id"`
		Name        string    `json:"name"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	mission, err := domain.NewMission(orgID, req.WorkspaceID, req.Name)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := h.missions.Create(r.Context(), mission); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create mission", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, missionResponse(mission))
}

func (h *apiHandlers) listMissions(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	missions, err := h.missions.List(r.Context(), orgID, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list missions", nil)
		return
	}
	items := make([]map[string]any, 0, len(missions))
	for _, m := range missions {
		items = append(items, missionResponse(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *apiHandlers) getMission(w http.ResponseWriter, r *http.Request) {
	mission, ok := h.loadMission(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, missionResponse(mission))
}

func (h *apiHandlers) addMetric(w http.ResponseWriter, r *http.Request) {
	mission, ok := h.loadMission(w, r)
	if !ok {
		return
	}
	var req struct {
		Name   string  `json:"name"`
		Target float64 `json:"target"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	metric, err := mission.AddMetric(req.Name, req.Target)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.missions.Save(r.Context(), mission); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save mission", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, metric)
}

func (h *apiHandlers) setMetricTarget(w http.ResponseWriter, r *http.Request) {
	mission, ok := h.loadMission(w, r)
	if !ok {
		return
	}
	metricID, err := uuid.Parse(r.PathValue("metricID"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid metric id", nil)
		return
	}
	var req struct {
		Target float64 `json:"target"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if err := mission.SetMetricTarget(metricID, req.Target); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.missions.Save(r.Context(), mission); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save mission", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, missionResponse(mission))
}

func (h *apiHandlers) recordCheckIn(w http.ResponseWriter, r *http.Request) {
	mission, ok := h.loadMission(w, r)
	if !ok {
		return
	}
	var req struct {
		MetricID   uuid.UUID `json:"metric_id"`
		Value      float64   `json:"value"`
		Note       string    `json:"note"`
		Confidence int       `json:"confidence"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if err := mission.RecordCheckIn(req.MetricID, req.Value, req.Note, req.Confidence); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.missions.Save(r.Context(), mission); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save mission", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, missionResponse(mission))
}

func (h *apiHandlers) completeMission(w http.ResponseWriter, r *http.Request) {
	mission, ok := h.loadMission(w, r)
	if !ok {
		return
	}
	if err := mission.Complete(authSubject(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.missions.Save(r.Context(), mission); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save mission", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, missionResponse(mission))
}

func (h *apiHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return
	}
	notifications, err := h.notifications.ListForOrg(r.Context(), orgID, queryInt(r, "limit", 50))
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list notifications", nil)
		return
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, map[string]any{
			"notification_id": n.NotificationID,
			"kind":            n.Kind,
			"title":           n.Title,
			"body":            n.Body,
			"created_at":      n.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *apiHandlers) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return
	}
	summary, err := h.summary.Summary(r.Context(), orgID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to build summary", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func (h *apiHandlers) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.GetDeadLetters(r.Context(), queryInt(r, "page", 1), queryInt(r, "page_size", 50))
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list dead letters", nil)
		return
	}
	items := make([]map[string]any, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, map[string]any{
			"envelope_id":      e.EnvelopeID,
			"org_id":           e.OrgID,
			"event_type":       e.EventType,
			"occurred_at":      e.OccurredAt,
			"dead_lettered_at": e.DeadLetteredAt,
			"attempts":         e.Attempts,
			"last_error":       e.LastError,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"page":      page.Page,
		"page_size": page.PageSize,
		"total":     page.Total,
	})
}

func (h *apiHandlers) reprocessDeadLetter(w http.ResponseWriter, r *http.Request) {
	envelopeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid envelope id", nil)
		return
	}
	if err := h.admin.ReprocessDeadLetter(r.Context(), envelopeID); err != nil {
		if errors.Is(err, outbox.ErrDeadLetterNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "dead letter not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to reprocess dead letter", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requeued": 1})
}

func (h *apiHandlers) reprocessDeadLetters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventTypePrefix    string     `json:"event_type_prefix"`
		DeadLetteredBefore *time.Time `json:"dead_lettered_before"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	count, err := h.admin.ReprocessDeadLetters(r.Context(), models.DeadLetterFilter{
		EventTypePrefix:    strings.TrimSpace(req.EventTypePrefix),
		DeadLetteredBefore: req.DeadLetteredBefore,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to reprocess dead letters", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requeued": count})
}

func (h *apiHandlers) loadOrganization(w http.ResponseWriter, r *http.Request) (*domain.Organization, bool) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return nil, false
	}
	org, err := h.orgs.Load(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "organization not found", nil)
			return nil, false
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load organization", nil)
		return nil, false
	}
	return org, true
}

func (h *apiHandlers) loadMission(w http.ResponseWriter, r *http.Request) (*domain.Mission, bool) {
	orgID, ok := requestOrgID(w, r)
	if !ok {
		return nil, false
	}
	missionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid mission id", nil)
		return nil, false
	}
	mission, err := h.missions.Get(r.Context(), orgID, missionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "mission not found", nil)
			return nil, false
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load mission", nil)
		return nil, false
	}
	return mission, true
}

// authSubject returns the caller's user id, or uuid.Nil when the token
// subject is absent or not a uuid.
func authSubject(r *http.Request) uuid.UUID {
	if auth, ok := authx.FromContext(r.Context()); ok {
		if id, err := uuid.Parse(auth.Subject); err == nil {
			return id
		}
	}
	return uuid.Nil
}

func requestOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := orgx.OrgIDFromContext(r.Context())
	if raw == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "missing organization", nil)
		return uuid.Nil, false
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid organization id", nil)
		return uuid.Nil, false
	}
	return orgID, true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMetricNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrMissionCompleted):
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", err.Error(), nil)
	default:
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	}
}

func missionResponse(m *domain.Mission) map[string]any {
	return map[string]any{
		"mission_id":   m.MissionID,
		"org_id":       m.OrgID,
		"workspace_id": m.WorkspaceID,
		"name":         m.Name,
		"status":       m.Status,
		"metrics":      m.Metrics,
		"created_at":   m.CreatedAt,
		"updated_at":   m.UpdatedAt,
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
