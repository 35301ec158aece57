package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"civio.org/internal/auth"
	"civio.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Decision is the ephemeral record of one authorization gate evaluation. It
// exists only on the log stream; nothing persists it.
type Decision struct {
	Role       auth.Role
	Permission auth.Permission
	Resource   string
	Allowed    bool
}

// LogDecision emits exactly one structured line for a gate decision and
// updates the decision counter.
func LogDecision(ctx context.Context, d Decision) {
	obs.ObserveAuthDecision(d.Role.String(), d.Permission.String(), d.Allowed)
	_ = LogEvent(ctx, "authz.decision", map[string]any{
		"role":       d.Role.String(),
		"permission": d.Permission.String(),
		"resource":   d.Resource,
		"allowed":    d.Allowed,
	})
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry["user_id"] = strconv.FormatInt(principal.ID, 10)
		entry["role"] = principal.Role.String()
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
