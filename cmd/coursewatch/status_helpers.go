package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coursewatch/internal/ipc"
)

func daemonStatusLines(resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 4)
	switch {
	case resp.Running:
		detail := fmt.Sprintf("pid %d", resp.PID)
		if !resp.StartedAt.IsZero() {
			detail += ", up " + formatDurationSince(resp.StartedAt)
		}
		lines = append(lines, renderStatusLine("Running", statusOK, detail, colorize))
		if !resp.NextCycleAt.IsZero() {
			lines = append(lines, renderStatusLine("Next poll", statusInfo, formatTimestamp(resp.NextCycleAt), colorize))
		}
		if !resp.LockAcquiredAt.IsZero() {
			lines = append(lines, renderStatusLine("Lock held", statusInfo, "since "+formatTimestamp(resp.LockAcquiredAt), colorize))
		}
	case strings.EqualFold(resp.DaemonState, "stopping"):
		lines = append(lines, renderStatusLine("Running", statusWarn, "daemon is shutting down", colorize))
	default:
		lines = append(lines, renderStatusLine("Running", statusWarn, "daemon is not running", colorize))
	}
	if strategy := strings.TrimSpace(resp.PreferredStrategy); strategy != "" {
		lines = append(lines, renderStatusLine("Strategy", statusInfo, strategy, colorize))
	}
	if path := strings.TrimSpace(resp.StoreDBPath); path != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, path, colorize))
	}
	return lines
}

func healthStatusLines(resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 4)
	status := strings.TrimSpace(resp.HealthStatus)
	if status == "" {
		status = "unknown"
	}
	lines = append(lines, renderStatusLine("Status", healthStatusKind(status), status, colorize))
	if resp.ConsecutiveFailures > 0 {
		lines = append(lines, renderStatusLine("Failure streak", statusWarn, strconv.Itoa(resp.ConsecutiveFailures), colorize))
	}
	if !resp.LastCycleAt.IsZero() {
		detail := formatTimestamp(resp.LastCycleAt)
		if strategy := strings.TrimSpace(resp.LastStrategy); strategy != "" {
			detail += " via " + strategy
		}
		lines = append(lines, renderStatusLine("Last cycle", statusInfo, detail, colorize))
	}
	if !resp.LastSuccessAt.IsZero() {
		lines = append(lines, renderStatusLine("Last success", statusInfo, formatTimestamp(resp.LastSuccessAt), colorize))
	}
	if lastErr := strings.TrimSpace(resp.LastError); lastErr != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, lastErr, colorize))
	}
	return lines
}

func buildActivityRows(resp *ipc.StatusResponse) [][]string {
	rows := [][]string{
		{"Cycles run", formatCount(resp.CyclesRun)},
		{"Courses discovered", formatCount(resp.ItemsDiscovered)},
		{"Digests sent", formatCount(resp.DigestsSent)},
		{"Cycle errors", formatCount(resp.Errors)},
		{"Courses tracked", formatCount(resp.SeenTotal)},
		{"Awaiting digest", formatCount(resp.SeenUnnotified)},
	}
	if !resp.LastSeenAt.IsZero() {
		rows = append(rows, []string{"Last sighting", formatTimestamp(resp.LastSeenAt)})
	}
	return rows
}

func healthStatusKind(status string) statusKind {
	switch strings.ToLower(status) {
	case "healthy":
		return statusOK
	case "degraded":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func formatCount(value int64) string {
	return strconv.FormatInt(value, 10)
}

func formatTimestamp(ts time.Time) string {
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatDurationSince(started time.Time) string {
	elapsed := time.Since(started)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Round(time.Second).String()
}
