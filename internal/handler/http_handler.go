package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/repository"
	"github.com/fundflow/be-fund-requests/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	requests       *service.RequestService
	finalReceivers *service.FinalReceiverProvider
	log            zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(requests *service.RequestService, finalReceivers *service.FinalReceiverProvider, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		requests:       requests,
		finalReceivers: finalReceivers,
		log:            log,
	}
}

// CreateRequest handles fund request submission HTTP requests
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Title        string            `json:"title"`
		Description  string            `json:"description"`
		Amount       int64             `json:"amount"`
		InitiatorID  int64             `json:"initiator_id"`
		WorkflowID   int64             `json:"workflow_id"`
		DepartmentID *int64            `json:"department_id"`
		ProjectID    *int64            `json:"project_id"`
		Fields       map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	in := &service.CreateRequestInput{
		Title:        req.Title,
		Description:  req.Description,
		Amount:       req.Amount,
		InitiatorID:  req.InitiatorID,
		WorkflowID:   req.WorkflowID,
		DepartmentID: req.DepartmentID,
		ProjectID:    req.ProjectID,
	}
	for k, v := range req.Fields {
		in.Fields = append(in.Fields, service.FieldInput{Key: k, Value: v})
	}

	created, err := h.requests.CreateRequest(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// ListRequests handles list fund request HTTP requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	initiatorID := h.optionalQueryInt64(r, "initiator_id")

	var status *repository.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := repository.RequestStatus(raw)
		status = &s
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			offset = v
		}
	}

	requests, total, err := h.requests.ListRequests(r.Context(), initiatorID, status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
	})
}

// GetRequest handles get fund request HTTP requests
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.queryInt64(w, r, "id")
	if !ok {
		return
	}
	req, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// Approve handles approval action HTTP requests
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.Approve(r.Context(), req.RequestID, req.Level, req.ActedBy, req.Comment); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// Reject handles rejection action HTTP requests
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		actionRequest
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.Reject(r.Context(), req.RequestID, req.Level, req.ActedBy, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// SendBack handles send-back action HTTP requests
func (h *HTTPHandler) SendBack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.SendBack(r.Context(), req.RequestID, req.Level, req.ActedBy, req.Comment); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent_back"})
}

// Resubmit handles resubmission HTTP requests for sent-back fund requests
func (h *HTTPHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RequestID int64             `json:"request_id"`
		UserID    int64             `json:"user_id"`
		Fields    map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fields := make([]service.FieldInput, 0, len(req.Fields))
	for k, v := range req.Fields {
		fields = append(fields, service.FieldInput{Key: k, Value: v})
	}

	if err := h.requests.Resubmit(r.Context(), req.RequestID, req.UserID, fields); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resubmitted"})
}

// Reassign handles manual reassignment of a pending approval
func (h *HTTPHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RequestID     int64 `json:"request_id"`
		Level         int   `json:"level"`
		NewApproverID int64 `json:"new_approver_id"`
		ActedBy       int64 `json:"acted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.ReassignApproval(r.Context(), req.RequestID, req.Level, req.NewApproverID, req.ActedBy); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
}

// CompleteFinal handles final receiver completion HTTP requests
func (h *HTTPHandler) CompleteFinal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RequestID int64 `json:"request_id"`
		UserID    int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.CompleteFinalReceiver(r.Context(), req.RequestID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// PendingApprovals handles HTTP requests listing approvals awaiting a user
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := h.queryInt64(w, r, "user_id")
	if !ok {
		return
	}
	approvals, err := h.requests.GetPendingApprovals(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// AuditTrail handles HTTP requests for a fund request's audit trail
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID, ok := h.queryInt64(w, r, "request_id")
	if !ok {
		return
	}
	events, err := h.requests.GetAuditTrail(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// FinalReceivers handles HTTP requests previewing a workflow's receiver audience
func (h *HTTPHandler) FinalReceivers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workflowID, ok := h.queryInt64(w, r, "workflow_id")
	if !ok {
		return
	}
	projectID := h.optionalQueryInt64(r, "project_id")
	departmentID := h.optionalQueryInt64(r, "department_id")

	receivers, err := h.finalReceivers.GetFinalReceivers(r.Context(), workflowID, projectID, departmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"receivers": receivers})
}

// CreateWorkflow handles workflow template creation HTTP requests
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Steps []struct {
			Name             string  `json:"name"`
			SLAHours         int     `json:"sla_hours"`
			AutoApprove      bool    `json:"auto_approve"`
			IsFinalReceiver  bool    `json:"is_final_receiver"`
			DesignationID    *int64  `json:"designation_id"`
			AssignedUserName *string `json:"assigned_user_name"`
		} `json:"steps"`
		FinalReceivers []struct {
			ReceiverName *string `json:"receiver_name"`
			UserID       *int64  `json:"user_id"`
		} `json:"final_receivers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf := &repository.Workflow{Name: req.Name}
	for _, s := range req.Steps {
		wf.Steps = append(wf.Steps, &repository.WorkflowStep{
			Name:             s.Name,
			SLAHours:         s.SLAHours,
			AutoApprove:      s.AutoApprove,
			IsFinalReceiver:  s.IsFinalReceiver,
			DesignationID:    s.DesignationID,
			AssignedUserName: s.AssignedUserName,
		})
	}
	for _, recv := range req.FinalReceivers {
		wf.FinalReceivers = append(wf.FinalReceivers, &repository.WorkflowFinalReceiver{
			ReceiverName: recv.ReceiverName,
			UserID:       recv.UserID,
		})
	}

	if err := h.requests.CreateWorkflow(r.Context(), wf); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wf)
}

// ListDelegations handles HTTP requests listing a user's delegations
func (h *HTTPHandler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fromUserID, ok := h.queryInt64(w, r, "from_user_id")
	if !ok {
		return
	}
	delegations, err := h.requests.ListDelegations(r.Context(), fromUserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"delegations": delegations})
}

// CreateDelegation handles delegation creation HTTP requests
func (h *HTTPHandler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FromUserID int64     `json:"from_user_id"`
		ToUserID   int64     `json:"to_user_id"`
		StartsAt   time.Time `json:"starts_at"`
		EndsAt     time.Time `json:"ends_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	d, err := h.requests.CreateDelegation(r.Context(), req.FromUserID, req.ToUserID, req.StartsAt, req.EndsAt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, d)
}

// RevokeDelegation handles delegation revocation HTTP requests
func (h *HTTPHandler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.requests.RevokeDelegation(r.Context(), req.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ── helpers ──────────────────────────────────────────────────────────────

type actionRequest struct {
	RequestID int64   `json:"request_id"`
	Level     int     `json:"level"`
	ActedBy   int64   `json:"acted_by"`
	Comment   *string `json:"comment"`
}

func (h *HTTPHandler) queryInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, name+" is required", http.StatusBadRequest)
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, name+" must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func (h *HTTPHandler) optionalQueryInt64(r *http.Request, name string) *int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperr.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperr.ErrCodeConflict:
		status = http.StatusConflict
	case apperr.ErrCodeUnauthorized:
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}
