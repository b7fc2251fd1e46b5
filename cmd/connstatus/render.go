package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/plexcord/connstatus/internal/bus"
	"github.com/plexcord/connstatus/internal/catalog"
	"github.com/plexcord/connstatus/internal/pkg/security"
	"github.com/plexcord/connstatus/internal/status"
)

// errUserAbort is returned when the user cancels a prompt.
var errUserAbort = errors.New("user abort")

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

func healthStyle(h status.Health) lipgloss.Style {
	switch h {
	case status.HealthHealthy:
		return successStyle
	case status.HealthPartial:
		return warningStyle
	case status.HealthError:
		return errorStyle
	}
	return mutedStyle
}

func serviceIcon(s status.ServiceSummary) string {
	switch {
	case s.Connected:
		return successStyle.Render("●")
	case s.Error != nil:
		return errorStyle.Render("✗")
	case s.Loading || s.Retrying:
		return warningStyle.Render("◌")
	}
	return mutedStyle.Render("○")
}

// renderSummary writes sum as text or JSON.
func renderSummary(w io.Writer, sum status.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	_, err := fmt.Fprintln(w, summaryText(sum))
	return err
}

func summaryText(sum status.Summary) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Connections"))
	sb.WriteString("  ")
	sb.WriteString(healthStyle(sum.Health).Render(string(sum.Health)))
	sb.WriteString("\n")

	for _, s := range []status.ServiceSummary{sum.Plex, sum.Discord} {
		fmt.Fprintf(&sb, "\n%s %-8s %s  %s",
			serviceIcon(s),
			catalog.ServiceName(s.Service),
			s.Status,
			mutedStyle.Render("last connected: "+s.LastConnected),
		)
	}

	for _, e := range sum.Errors {
		fmt.Fprintf(&sb, "\n\n%s %s",
			errorStyle.Render(catalog.ServiceName(e.Source)+":"),
			e.Title,
		)
		if e.Description != "" {
			fmt.Fprintf(&sb, "\n  %s", e.Description)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(&sb, "\n  %s", mutedStyle.Render(e.Suggestion))
		}
		if e.Code != "" {
			fmt.Fprintf(&sb, "\n  %s", mutedStyle.Render("code: "+e.Code))
		}
	}

	return boxStyle.Render(sb.String())
}

// renderEvents writes journal entries one per line, or as a JSON array.
func renderEvents(w io.Writer, events []bus.LoggedEvent, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No events"))
		return err
	}
	for _, e := range events {
		payload := ""
		if e.Event.Payload != nil {
			data, err := json.Marshal(e.Event.Payload)
			if err == nil {
				payload = security.SanitizeForLog(string(data))
			}
		}
		if _, err := fmt.Fprintf(w, "%s  %-24s %-14s %s\n",
			mutedStyle.Render(e.Timestamp.Format("2006-01-02 15:04:05")),
			e.Topic,
			e.Event.Source,
			payload,
		); err != nil {
			return err
		}
	}
	return nil
}

// failureHint suggests what to do about a failed command.
func failureHint(code string) string {
	switch {
	case code == "", !catalog.Known(code):
		return ""
	case catalog.IsAuthError(code):
		return "Sign in again from the PlexCord settings."
	case !catalog.IsRetryable(code):
		return "Retrying will not help until the cause is fixed."
	case catalog.IsConnectionError(code):
		return "The backend keeps retrying in the background."
	}
	return ""
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+msg))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warningStyle.Render("! "+msg))
}

// promptClientID asks for a presence client ID, validating as the user types.
func promptClientID(current string) (string, error) {
	value := current

	input := huh.NewInput().
		Title("Discord client ID").
		Description("Leave empty to use the built-in application.").
		Placeholder("123456789012345678").
		Value(&value).
		Validate(security.ValidateClientID)

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", errUserAbort
	}
	return value, nil
}
