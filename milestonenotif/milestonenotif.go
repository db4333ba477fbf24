package milestonenotif

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	instance *MilestoneNotifier
	once     sync.Once
)

// MilestoneNotifier posts agent lifecycle milestones (first submission, agent
// went live, deployment failed) to a Slack webhook so operators can follow
// activity without tailing logs.
type MilestoneNotifier struct {
	webhookURL  string
	environment string
	appName     string
	mu          sync.RWMutex
}

// Init initializes the global milestone notifier instance
func Init(webhookURL, environment string) {
	once.Do(func() {
		instance = &MilestoneNotifier{
			webhookURL:  webhookURL,
			environment: environment,
			appName:     "agentbackend",
		}
	})
}

// New sends a milestone notification message to Slack
func New(agentID, message string) {
	if instance == nil {
		log.Printf("⚠️ Milestone notifier not initialized, skipping notification: %s", message)
		return
	}

	instance.send(agentID, message)
}

func (n *MilestoneNotifier) send(agentID, message string) {
	if n.webhookURL == "" {
		return // Milestone notifications disabled
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	// Send notification asynchronously to avoid blocking
	go n.sendSlackNotification(agentID, message)
}

func (n *MilestoneNotifier) sendSlackNotification(agentID, message string) {
	// Build fields array
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Service:* %s", n.appName)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Environment:* %s", n.environment)},
	}

	if agentID != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Agent:* `%s`", agentID),
		})
	}

	fields = append(fields, map[string]any{
		"type": "mrkdwn",
		"text": fmt.Sprintf("*Timestamp:* %s", time.Now().Format("2006-01-02 15:04:05 UTC")),
	})

	payload := map[string]any{
		"blocks": []map[string]any{
			{
				"type":   "section",
				"fields": fields,
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("📊 *Milestone:*\n%s", message),
				},
			},
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ Failed to marshal milestone notification payload: %v", err)
		return
	}

	// Create request with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, strings.NewReader(string(payloadBytes)))
	if err != nil {
		log.Printf("❌ Failed to create milestone notification request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("❌ Failed to send milestone notification: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Milestone notification returned status %d", resp.StatusCode)
	}
}
