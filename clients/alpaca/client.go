package alpaca

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"agentbackend/clients"
	"agentbackend/core"
)

// Client talks to the Alpaca Broker API to create and fund paper trading
// accounts. The broker API rate-limits aggressively, so every call goes
// through a shared limiter.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(baseURL, apiKey, secretKey string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(apiKey, secretKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

type accountResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type achRelationshipResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type transferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
}

// CreateAccount opens a sandbox paper account for the agent and immediately
// establishes the ACH relationship the later funding transfer needs. Identity
// fields are fixed sandbox placeholders - these accounts never touch real money.
func (c *Client) CreateAccount(ctx context.Context, profile clients.OwnerProfile) (*clients.BrokerageAccount, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	email := profile.Email
	if email == "" {
		email = fmt.Sprintf("agent-%s-user-%s@agents.invalid", profile.AgentID, profile.UserID)
	}
	signedAt := time.Now().UTC().Format(time.RFC3339)

	body := map[string]any{
		"contact": map[string]any{
			"email_address":  email,
			"phone_number":   "5550000000",
			"street_address": []string{"123 Placeholder Ln"},
			"city":           "Seattle",
			"state":          "WA",
			"postal_code":    "98101",
			"country":        "USA",
		},
		"identity": map[string]any{
			"given_name":               "Agent",
			"family_name":              shortRef(profile.AgentID),
			"date_of_birth":            "1990-01-01",
			"tax_id":                   "666-55-4321",
			"tax_id_type":              "USA_SSN",
			"country_of_citizenship":   "USA",
			"country_of_birth":         "USA",
			"country_of_tax_residence": "USA",
			"funding_source":           []string{"employment_income"},
		},
		"disclosures": map[string]any{
			"is_control_person":                false,
			"is_affiliated_exchange_or_finra":  false,
			"is_politically_exposed":           false,
			"immediate_family_exposed":         false,
		},
		"agreements": []map[string]any{
			{"agreement": "account_agreement", "signed_at": signedAt, "ip_address": "127.0.0.1"},
			{"agreement": "customer_agreement", "signed_at": signedAt, "ip_address": "127.0.0.1"},
		},
	}

	var account accountResponse
	var errBody apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&account).
		SetError(&errBody).
		Post("/v1/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to create brokerage account: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("brokerage account creation rejected (%d): %s", resp.StatusCode(), errBody.Message)
	}

	log.Printf("📋 Created brokerage account %s for agent %s", account.ID, profile.AgentID)

	relationship, err := c.createACHRelationship(ctx, account.ID, profile)
	if err != nil {
		return nil, err
	}

	return &clients.BrokerageAccount{
		AccountID:      account.ID,
		RelationshipID: relationship.ID,
		Status:         account.Status,
	}, nil
}

func (c *Client) createACHRelationship(
	ctx context.Context,
	accountID string,
	profile clients.OwnerProfile,
) (*achRelationshipResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	body := map[string]any{
		"account_owner_name":  fmt.Sprintf("Agent %s", shortRef(profile.AgentID)),
		"bank_account_type":   "CHECKING",
		"bank_account_number": "123456789012",
		"bank_routing_number": "121000358",
	}

	var relationship achRelationshipResponse
	var errBody apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&relationship).
		SetError(&errBody).
		Post(fmt.Sprintf("/v1/accounts/%s/ach_relationships", accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to create ACH relationship: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ACH relationship creation rejected (%d): %s", resp.StatusCode(), errBody.Message)
	}

	log.Printf("📋 Created ACH relationship %s for account %s", relationship.ID, accountID)
	return &relationship, nil
}

// CreateTransfer initiates an incoming ACH transfer into the paper account.
// The broker rejects transfers while the ACH relationship is still QUEUED;
// that rejection maps to core.ErrFundingNotReady so callers can retry later.
func (c *Client) CreateTransfer(
	ctx context.Context,
	accountID, relationshipID string,
	amount decimal.Decimal,
) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	body := map[string]any{
		"transfer_type":   "ach",
		"relationship_id": relationshipID,
		"direction":       "INCOMING",
		"timing":          "immediate",
		"amount":          amount.StringFixed(2),
	}

	var transfer transferResponse
	var errBody apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&transfer).
		SetError(&errBody).
		Post(fmt.Sprintf("/v1/accounts/%s/transfers", accountID))
	if err != nil {
		return "", fmt.Errorf("failed to create transfer: %w", err)
	}
	if resp.IsError() {
		if strings.Contains(errBody.Message, "QUEUED") {
			return "", core.ErrFundingNotReady
		}
		return "", fmt.Errorf("transfer rejected (%d): %s", resp.StatusCode(), errBody.Message)
	}

	log.Printf("📋 Created transfer %s of $%s into account %s", transfer.ID, amount.StringFixed(2), accountID)
	return transfer.ID, nil
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
