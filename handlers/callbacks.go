package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"agentbackend/usecases"
)

// CallbacksHTTPHandler receives asynchronous terminal reports from the build
// executor, the brokerage and the deployment platform. Callers authenticate
// with a shared token, not a user session. Every accepted callback returns
// 200 even when it is dropped as stale - collaborators redeliver on anything
// else.
type CallbacksHTTPHandler struct {
	backtestUseCase   usecases.BacktestUseCaseInterface
	brokerageUseCase  usecases.BrokerageUseCaseInterface
	deploymentUseCase usecases.DeploymentUseCaseInterface

	callbackToken string
}

func NewCallbacksHTTPHandler(
	backtestUseCase usecases.BacktestUseCaseInterface,
	brokerageUseCase usecases.BrokerageUseCaseInterface,
	deploymentUseCase usecases.DeploymentUseCaseInterface,
	callbackToken string,
) *CallbacksHTTPHandler {
	return &CallbacksHTTPHandler{
		backtestUseCase:   backtestUseCase,
		brokerageUseCase:  brokerageUseCase,
		deploymentUseCase: deploymentUseCase,
		callbackToken:     callbackToken,
	}
}

type BacktestCallbackRequest struct {
	JobID         string `json:"job_id"`
	Succeeded     bool   `json:"succeeded"`
	ArtifactRef   string `json:"artifact_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type BrokerageCallbackRequest struct {
	AgentID    string `json:"agent_id"`
	Event      string `json:"event"`
	TransferID string `json:"transfer_id,omitempty"`
}

type DeploymentCallbackRequest struct {
	AgentID       string `json:"agent_id"`
	Ready         bool   `json:"ready"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (h *CallbacksHTTPHandler) HandleBacktestCallback(w http.ResponseWriter, r *http.Request) {
	log.Printf("📨 Backtest callback received from %s", r.RemoteAddr)

	var req BacktestCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse callback body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	if err := h.backtestUseCase.OnCallback(
		r.Context(), req.JobID, req.Succeeded, req.ArtifactRef, req.FailureReason,
	); err != nil {
		log.Printf("❌ Failed to process backtest callback: %v", err)
		http.Error(w, "failed to process callback", http.StatusInternalServerError)
		return
	}

	h.writeAccepted(w)
}

func (h *CallbacksHTTPHandler) HandleBrokerageCallback(w http.ResponseWriter, r *http.Request) {
	log.Printf("📨 Brokerage callback received from %s", r.RemoteAddr)

	var req BrokerageCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse callback body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Event {
	case "account_approved":
		err = h.brokerageUseCase.OnAccountCallback(r.Context(), req.AgentID)
	case "transfer_settled":
		err = h.brokerageUseCase.OnFundingCallback(r.Context(), req.AgentID, req.TransferID)
	default:
		http.Error(w, "event must be account_approved or transfer_settled", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("❌ Failed to process brokerage callback: %v", err)
		http.Error(w, "failed to process callback", http.StatusInternalServerError)
		return
	}

	h.writeAccepted(w)
}

func (h *CallbacksHTTPHandler) HandleDeploymentCallback(w http.ResponseWriter, r *http.Request) {
	log.Printf("📨 Deployment callback received from %s", r.RemoteAddr)

	var req DeploymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse callback body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	if err := h.deploymentUseCase.OnCallback(
		r.Context(), req.AgentID, req.Ready, req.FailureReason,
	); err != nil {
		log.Printf("❌ Failed to process deployment callback: %v", err)
		http.Error(w, "failed to process callback", http.StatusInternalServerError)
		return
	}

	h.writeAccepted(w)
}

func (h *CallbacksHTTPHandler) SetupEndpoints(router *mux.Router) {
	log.Printf("🚀 Registering callback endpoints")

	router.HandleFunc("/callbacks/backtest", h.withCallbackAuth(h.HandleBacktestCallback)).Methods("POST")
	router.HandleFunc("/callbacks/brokerage", h.withCallbackAuth(h.HandleBrokerageCallback)).Methods("POST")
	router.HandleFunc("/callbacks/deployment", h.withCallbackAuth(h.HandleDeploymentCallback)).Methods("POST")

	log.Printf("✅ All callback endpoints registered successfully")
}

// withCallbackAuth verifies the shared callback token in constant time
func (h *CallbacksHTTPHandler) withCallbackAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Callback-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.callbackToken)) != 1 {
			log.Printf("❌ Callback with missing or invalid token from %s", r.RemoteAddr)
			http.Error(w, "invalid callback token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *CallbacksHTTPHandler) writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		log.Printf("❌ Failed to encode callback response: %v", err)
	}
}
