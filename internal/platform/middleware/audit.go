package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pediaclinic/clinic/internal/platform/auth"
)

// AuditEntry records who touched clinical data, when and how.
type AuditEntry struct {
	AccountID  string
	Role       string
	Resource   string
	ResourceID string
	Action     string // read, create, update, delete, search, import
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

var auditedResources = map[string]bool{
	"encounters":    true,
	"record-import": true,
	"accounts":      true,
}

// Audit logs access to encounter, record-import and account routes. Entries
// always go to the structured log; recorders receive them as well.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, resourceID := splitAPIPath(req.URL.Path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Resource:   resource,
				ResourceID: resourceID,
				Action:     auditAction(req.Method, req.URL.Path),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get(requestIDKey).(string)
			if r, ok := auth.RequesterFromContext(req.Context()); ok {
				entry.AccountID = r.AccountID.String()
				entry.Role = r.Role.String()
			}

			for _, rec := range recorders {
				if rec == nil {
					continue
				}
				if recErr := rec.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("account_id", entry.AccountID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Msg("clinical_data_access")

			return err
		}
	}
}

// splitAPIPath returns the first and second segments after /api/v1/.
func splitAPIPath(path string) (string, string) {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "", ""
	}
	segments := strings.Split(rest, "/")
	resource := segments[0]
	id := ""
	if len(segments) > 1 {
		id = segments[1]
	}
	return resource, id
}

func auditAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/record-import/search"):
		return "search"
	case strings.HasSuffix(path, "/record-import/commit"):
		return "import"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
