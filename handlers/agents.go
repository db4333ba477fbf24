package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"agentbackend/appctx"
	"agentbackend/core"
	"agentbackend/middleware"
	"agentbackend/models"
	"agentbackend/models/api"
	"agentbackend/usecases"
)

// AgentsHTTPHandler exposes the agent lifecycle over HTTP. Submission, reads
// and stage commands all live here; asynchronous collaborator callbacks have
// their own handler.
type AgentsHTTPHandler struct {
	submissionUseCase usecases.SubmissionUseCaseInterface
	lifecycleUseCase  usecases.LifecycleUseCaseInterface
	backtestUseCase   usecases.BacktestUseCaseInterface
	brokerageUseCase  usecases.BrokerageUseCaseInterface
	deploymentUseCase usecases.DeploymentUseCaseInterface

	defaultFundingAmount decimal.Decimal
}

func NewAgentsHTTPHandler(
	submissionUseCase usecases.SubmissionUseCaseInterface,
	lifecycleUseCase usecases.LifecycleUseCaseInterface,
	backtestUseCase usecases.BacktestUseCaseInterface,
	brokerageUseCase usecases.BrokerageUseCaseInterface,
	deploymentUseCase usecases.DeploymentUseCaseInterface,
	defaultFundingAmount decimal.Decimal,
) *AgentsHTTPHandler {
	return &AgentsHTTPHandler{
		submissionUseCase:    submissionUseCase,
		lifecycleUseCase:     lifecycleUseCase,
		backtestUseCase:      backtestUseCase,
		brokerageUseCase:     brokerageUseCase,
		deploymentUseCase:    deploymentUseCase,
		defaultFundingAmount: defaultFundingAmount,
	}
}

type SubmitAgentRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type FundAgentRequest struct {
	Amount string `json:"amount,omitempty"`
}

func (h *AgentsHTTPHandler) HandleSubmitAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Submit agent request received from %s", r.RemoteAddr)

	user, ok := appctx.GetUser(r.Context())
	if !ok {
		log.Printf("❌ User not found in context")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req SubmitAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		log.Printf("❌ Missing code in request")
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	agent, duplicate, err := h.submissionUseCase.Submit(r.Context(), user, req.Name, []byte(req.Code))
	if err != nil {
		log.Printf("❌ Failed to submit agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	h.writeJSONResponse(w, status, api.SubmitAgentResponse{
		Agent:     api.DomainAgentToAPIAgent(agent),
		Duplicate: duplicate,
	})
}

func (h *AgentsHTTPHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 List agents request received from %s", r.RemoteAddr)

	user, ok := appctx.GetUser(r.Context())
	if !ok {
		log.Printf("❌ User not found in context")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	agents, err := h.lifecycleUseCase.ListAgents(r.Context(), user)
	if err != nil {
		log.Printf("❌ Failed to list agents: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, api.DomainAgentsToAPIAgents(agents))
}

func (h *AgentsHTTPHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Get agent request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	agent, err := h.lifecycleUseCase.GetAgent(r.Context(), user, agentID)
	if err != nil {
		log.Printf("❌ Failed to get agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, api.DomainAgentToAPIAgent(agent))
}

func (h *AgentsHTTPHandler) HandleGetStatusHistory(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Get agent history request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	events, err := h.lifecycleUseCase.GetStatusHistory(r.Context(), user, agentID)
	if err != nil {
		log.Printf("❌ Failed to get agent history: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, api.DomainStatusEventsToAPIStatusEvents(events))
}

func (h *AgentsHTTPHandler) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("🗑️ Delete agent request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	if _, err := h.lifecycleUseCase.DeleteAgent(r.Context(), user, agentID); err != nil {
		log.Printf("❌ Failed to delete agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	log.Printf("✅ Agent deleted successfully: %s", agentID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentsHTTPHandler) HandleRetryBacktest(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔄 Retry backtest request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	if err := h.backtestUseCase.Retry(r.Context(), user, agentID); err != nil {
		log.Printf("❌ Failed to retry backtest: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "backtest started"})
}

func (h *AgentsHTTPHandler) HandleCancelBacktest(w http.ResponseWriter, r *http.Request) {
	log.Printf("🛑 Cancel backtest request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	if err := h.backtestUseCase.Cancel(r.Context(), user, agentID); err != nil {
		log.Printf("❌ Failed to cancel backtest: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "backtest canceled"})
}

func (h *AgentsHTTPHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	log.Printf("🏦 Create brokerage account request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	agent, err := h.brokerageUseCase.BeginAccountCreation(r.Context(), user, agentID)
	if err != nil {
		log.Printf("❌ Failed to create brokerage account: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, api.DomainAgentToAPIAgent(agent))
}

func (h *AgentsHTTPHandler) HandleFundAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("💰 Fund agent request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	var req FundAgentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("❌ Failed to parse request body: %v", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	amount := h.defaultFundingAmount
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			log.Printf("❌ Invalid funding amount %q: %v", req.Amount, err)
			http.Error(w, "amount must be a decimal number", http.StatusBadRequest)
			return
		}
		amount = parsed
	}

	agent, err := h.brokerageUseCase.BeginFunding(r.Context(), user, agentID, amount)
	if err != nil {
		log.Printf("❌ Failed to fund agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	response := api.FundAgentResponse{
		Agent: api.DomainAgentToAPIAgent(agent),
	}
	if response.Agent.FundedAmount != nil {
		response.FundedAmount = *response.Agent.FundedAmount
	}
	h.writeJSONResponse(w, http.StatusAccepted, response)
}

func (h *AgentsHTTPHandler) HandleDeployAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("🚀 Deploy agent request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	agent, err := h.deploymentUseCase.Begin(r.Context(), user, agentID)
	if err != nil {
		log.Printf("❌ Failed to deploy agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, api.DomainAgentToAPIAgent(agent))
}

func (h *AgentsHTTPHandler) HandleStopAgent(w http.ResponseWriter, r *http.Request) {
	log.Printf("🛑 Stop agent request received from %s", r.RemoteAddr)

	user, agentID, ok := h.userAndAgentID(w, r)
	if !ok {
		return
	}

	agent, err := h.deploymentUseCase.Stop(r.Context(), user, agentID)
	if err != nil {
		log.Printf("❌ Failed to stop agent: %v", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, api.DomainAgentToAPIAgent(agent))
}

func (h *AgentsHTTPHandler) SetupEndpoints(router *mux.Router, authMiddleware *middleware.ClerkAuthMiddleware) {
	log.Printf("🚀 Registering agent API endpoints")

	router.HandleFunc("/agents", authMiddleware.WithAuth(h.HandleSubmitAgent)).Methods("POST")
	router.HandleFunc("/agents", authMiddleware.WithAuth(h.HandleListAgents)).Methods("GET")
	router.HandleFunc("/agents/{id}", authMiddleware.WithAuth(h.HandleGetAgent)).Methods("GET")
	router.HandleFunc("/agents/{id}", authMiddleware.WithAuth(h.HandleDeleteAgent)).Methods("DELETE")
	router.HandleFunc("/agents/{id}/history", authMiddleware.WithAuth(h.HandleGetStatusHistory)).Methods("GET")

	router.HandleFunc("/agents/{id}/backtest", authMiddleware.WithAuth(h.HandleRetryBacktest)).Methods("POST")
	router.HandleFunc("/agents/{id}/backtest", authMiddleware.WithAuth(h.HandleCancelBacktest)).Methods("DELETE")

	router.HandleFunc("/agents/{id}/account", authMiddleware.WithAuth(h.HandleCreateAccount)).Methods("POST")
	router.HandleFunc("/agents/{id}/fund", authMiddleware.WithAuth(h.HandleFundAgent)).Methods("POST")

	router.HandleFunc("/agents/{id}/deployment", authMiddleware.WithAuth(h.HandleDeployAgent)).Methods("POST")
	router.HandleFunc("/agents/{id}/deployment", authMiddleware.WithAuth(h.HandleStopAgent)).Methods("DELETE")

	log.Printf("✅ All agent API endpoints registered successfully")
}

func (h *AgentsHTTPHandler) userAndAgentID(w http.ResponseWriter, r *http.Request) (*models.User, string, bool) {
	u, found := appctx.GetUser(r.Context())
	if !found {
		log.Printf("❌ User not found in context")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, "", false
	}

	vars := mux.Vars(r)
	id, present := vars["id"]
	if !present || !core.IsValidULID(id) {
		log.Printf("❌ Missing or invalid agent ID in URL path")
		http.Error(w, "agent ID must be a valid ULID", http.StatusBadRequest)
		return nil, "", false
	}
	return u, id, true
}

// writeDomainError maps domain errors onto HTTP status codes
func (h *AgentsHTTPHandler) writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *core.ValidationFailedError
	var stateErr *core.InvalidStateError
	var externalErr *core.ExternalServiceError

	switch {
	case errors.As(err, &validationErr):
		h.writeJSONError(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.Is(err, core.ErrAccessDenied):
		h.writeJSONError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, core.ErrNotFound):
		h.writeJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, core.ErrFundingNotReady):
		h.writeJSONResponse(w, http.StatusConflict, map[string]any{
			"error":     core.ErrFundingNotReady.Error(),
			"retryable": true,
		})
	case errors.Is(err, core.ErrConcurrencyLimitExceeded):
		h.writeJSONError(w, http.StatusTooManyRequests, core.ErrConcurrencyLimitExceeded.Error())
	case errors.As(err, &stateErr):
		h.writeJSONError(w, http.StatusConflict, stateErr.Error())
	case errors.As(err, &externalErr):
		h.writeJSONError(w, http.StatusBadGateway, externalErr.Error())
	default:
		h.writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *AgentsHTTPHandler) writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

func (h *AgentsHTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("❌ Failed to encode JSON response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
