package hooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"scanhub/internal/models"
	"scanhub/internal/notification"
	"scanhub/pkg/logger"
	"scanhub/pkg/taxonomy"
)

type NotifierHookConfig struct {
	// MinSeverity selects the findings announced one by one. Empty means
	// critical.
	MinSeverity taxonomy.Severity
	// MessagesPerSecond throttles the per finding messages.
	MessagesPerSecond float64
	Workers           int
}

// NotifierHook announces a finished scan and its most severe findings.
type NotifierHook struct {
	Config NotifierHookConfig
	sender notification.Sender
	logger *logger.Logger
}

func NewNotifierHook(sender notification.Sender, config NotifierHookConfig, log *logger.Logger) *NotifierHook {
	if config.MinSeverity == "" {
		config.MinSeverity = taxonomy.SeverityCritical
	}
	if config.MessagesPerSecond <= 0 {
		config.MessagesPerSecond = 2
	}
	if config.Workers <= 0 {
		config.Workers = 3
	}
	return &NotifierHook{Config: config, sender: sender, logger: log}
}

func (n *NotifierHook) Name() string {
	return "notification"
}

func (n *NotifierHook) Execute(ctx context.Context, hc HookContext) error {
	if err := n.sender.Send(ScanSummaryMessage(hc.Scan)); err != nil {
		return fmt.Errorf("failed to send scan summary: %w", err)
	}
	if hc.Scan.Status != models.ScanStatusCompleted {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(n.Config.MessagesPerSecond), 1)
	findings := make(chan models.Vulnerability)

	var wg sync.WaitGroup
	for i := 0; i < n.Config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range findings {
				if err := limiter.Wait(ctx); err != nil {
					continue
				}
				if err := n.sender.Send(FindingMessage(v)); err != nil {
					n.logger.WithFields(logger.Fields{
						"vulnerability_id": v.ID,
						"error":            err,
					}).Error("Failed to send Discord notification")
				}
			}
		}()
	}

	for _, v := range hc.Vulnerabilities {
		if v.Severity.Rank() < n.Config.MinSeverity.Rank() {
			continue
		}
		select {
		case findings <- v:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(findings)
	wg.Wait()

	return ctx.Err()
}

// ScanSummaryMessage describes a scan in a terminal state.
func ScanSummaryMessage(scan *models.Scan) notification.Message {
	counts := scan.IssuesCounts
	msg := notification.Message{
		Title:       fmt.Sprintf("Scan %s %s", scan.Name, scan.Status),
		Description: fmt.Sprintf("**Tools:** %s", strings.Join(scan.SelectedTools, ", ")),
		Severity:    highestSeverity(counts),
		Fields: map[string]string{
			"Critical": strconv.Itoa(counts.Critical),
			"High":     strconv.Itoa(counts.High),
			"Medium":   strconv.Itoa(counts.Medium),
			"Low":      strconv.Itoa(counts.Low),
			"Total":    strconv.Itoa(counts.Total),
		},
	}

	if scan.ErrorMessage != "" {
		msg.Description = fmt.Sprintf("%s\n\n%s", msg.Description, scan.ErrorMessage)
	}

	var failed []string
	for _, tr := range scan.ToolResults {
		if tr.Status != models.ToolStatusSucceeded {
			failed = append(failed, fmt.Sprintf("%s (%s)", tr.Requested, tr.Status))
		}
	}
	if len(failed) > 0 {
		msg.Fields["Failed tools"] = strings.Join(failed, ", ")
	}
	return msg
}

func FindingMessage(v models.Vulnerability) notification.Message {
	description := v.Description
	if len(description) > 200 {
		description = description[:197] + "..."
	}

	msg := notification.Message{
		Title:       v.Title,
		Description: fmt.Sprintf("%s\n\n**Location:** `%s:%d`", description, v.Location.File, v.Location.Line),
		Severity:    string(v.Severity),
		Fields: map[string]string{
			"Severity": strings.ToUpper(string(v.Severity)),
			"Tool":     string(v.Tool),
		},
	}
	if v.CWE != "" {
		msg.Fields["CWE"] = v.CWE
	}
	if v.RuleID != "" {
		msg.Fields["Rule"] = v.RuleID
	}
	return msg
}

func highestSeverity(c models.IssuesCounts) string {
	switch {
	case c.Critical > 0:
		return string(taxonomy.SeverityCritical)
	case c.High > 0:
		return string(taxonomy.SeverityHigh)
	case c.Medium > 0:
		return string(taxonomy.SeverityMedium)
	case c.Low > 0:
		return string(taxonomy.SeverityLow)
	}
	return "info"
}
