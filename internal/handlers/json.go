package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	applog "labstock/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// coalesce returns the first non-nil, non-blank value: request payloads accept
// both the canonical English keys and the legacy Chinese spreadsheet keys.
func coalesce(values ...*string) *string {
	for _, value := range values {
		if value != nil && strings.TrimSpace(*value) != "" {
			return value
		}
	}
	return nil
}

func parseIDSegment(segment string) (uint, bool) {
	value, err := strconv.ParseUint(segment, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(value), true
}

// usageDateFormats covers the date spellings seen in historical spreadsheets
// and the web client.
var usageDateFormats = []string{
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"2006年01月02日",
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
	"01/02/2006",
	"01-02-2006",
	time.RFC3339,
}

func parseUsageDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, format := range usageDateFormats {
		if parsed, err := time.Parse(format, trimmed); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func queryDate(r *http.Request, key string) (time.Time, bool, error) {
	value := r.URL.Query().Get(key)
	if strings.TrimSpace(value) == "" {
		return time.Time{}, false, nil
	}
	parsed, err := parseUsageDate(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return parsed, true, nil
}

func queryInt(r *http.Request, key string, def int) int {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
