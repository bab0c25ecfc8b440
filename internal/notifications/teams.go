package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/models"
)

// TeamsPublisher posts cycle summaries to a Microsoft Teams webhook
type TeamsPublisher struct {
	webhookURL string
	client     *resty.Client
}

var _ ReportPublisher = (*TeamsPublisher)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewTeamsPublisher creates a publisher for the given webhook
func NewTeamsPublisher(webhookURL string) *TeamsPublisher {
	return &TeamsPublisher{
		webhookURL: webhookURL,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

// PublishCycleReport posts the cycle summary card
func (p *TeamsPublisher) PublishCycleReport(ctx context.Context, report *models.CycleReport) error {
	message := BuildTeamsMessage(report)

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(p.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	logrus.Debug("Published cycle report to Teams")
	return nil
}

// BuildTeamsMessage renders a cycle report as a MessageCard
func BuildTeamsMessage(report *models.CycleReport) *TeamsMessage {
	color := "107C10"
	if report.Errored > 0 || report.Error != "" {
		color = "D13438"
	}

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: color,
		Title:      "Follower Monitoring Cycle",
		Text: fmt.Sprintf("Checked %d profiles in %s, %d updated, %d alerts triggered",
			report.Checked, report.Duration, report.Updated, report.AlertsTriggered),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Checked", Value: fmt.Sprintf("%d", report.Checked)},
			{Name: "Updated", Value: fmt.Sprintf("%d", report.Updated)},
			{Name: "Not Found", Value: fmt.Sprintf("%d", report.NotFound)},
			{Name: "Errors", Value: fmt.Sprintf("%d", report.Errored)},
			{Name: "Alerts Triggered", Value: fmt.Sprintf("%d", report.AlertsTriggered)},
			{Name: "Started", Value: report.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		},
		Markdown: true,
	})

	var failures []string
	for _, outcome := range report.Profiles {
		if outcome.Status == models.StatusError {
			failures = append(failures, fmt.Sprintf("**@%s** - %s", outcome.Handle, outcome.Error))
		}
	}
	if len(failures) > 0 {
		limit := min(len(failures), 10)
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Failed Profiles",
			ActivityText:  strings.Join(failures[:limit], "\n\n"),
			Markdown:      true,
		})
	}

	if report.Error != "" {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Cycle Error",
			ActivityText:  report.Error,
		})
	}

	return message
}
