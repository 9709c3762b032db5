package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"conductor/api/internal/auth"
	"conductor/api/internal/authpw"
	"conductor/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	authpw     *authpw.Service
	corsOrigin string
}

func NewHTTPServer(service *Service, authService *authpw.Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, authpw: authService, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid.", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"err": false, "msg": "Successfully signed out."})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, map[string]any{
			"err":      false,
			"uuid":     session.UserUUID,
			"userName": session.UserName,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/all" {
		payload, err := s.service.GetUserProjects(r.Context(), session)
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/recent" {
		payload, err := s.service.GetRecentProjects(r.Context(), session)
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/available" {
		payload, err := s.service.GetAvailableProjects(r.Context())
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/completed" {
		payload, err := s.service.GetCompletedProjects(r.Context())
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/flagged" {
		payload, err := s.service.GetUserFlaggedProjects(r.Context(), session)
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		payload, err := s.service.SearchProjects(q, limit, offset)
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/orgtags" {
		payload, err := s.service.GetOrgTags(r.Context())
		s.respond(w, payload, err)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/projects" {
		var body CreateProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateProject(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		projectID := parts[2]
		if !util.IsBase62(projectID, projectIDLength) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid project identifier", nil)
			return
		}
		s.handleProject(w, r, session, projectID, parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "threads" {
		threadID := parts[2]
		if !util.IsBase62(threadID, threadIDLength) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid thread identifier", nil)
			return
		}
		s.handleThread(w, r, session, threadID, parts)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "messages" {
		messageID := parts[2]
		if !util.IsBase62(messageID, messageIDLength) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid message identifier", nil)
			return
		}
		if r.Method == http.MethodDelete {
			payload, err := s.service.DeleteMessage(r.Context(), session, messageID)
			s.respond(w, payload, err)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProject(r.Context(), session, projectID)
			s.respond(w, payload, err)
		case http.MethodPut:
			var body UpdateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateProject(r.Context(), session, projectID, body)
			s.respond(w, payload, err)
		case http.MethodDelete:
			payload, err := s.service.DeleteProject(r.Context(), session, projectID)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "complete" && r.Method == http.MethodPost {
		payload, err := s.service.CompleteProject(r.Context(), session, projectID)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 4 && parts[3] == "flag" {
		if r.Method == http.MethodPost {
			var body struct {
				FlagGroup   string `json:"flagGroup"`
				FlagDescrip string `json:"flagDescrip"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.FlagProject(r.Context(), session, projectID, body.FlagGroup, body.FlagDescrip)
			s.respond(w, payload, err)
			return
		}
		if r.Method == http.MethodDelete {
			payload, err := s.service.ClearProjectFlag(r.Context(), session, projectID)
			s.respond(w, payload, err)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "alert" && r.Method == http.MethodPut {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetAlert(r.Context(), session, projectID, body.Enabled)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 5 && parts[3] == "collaborators" && parts[4] == "addable" && r.Method == http.MethodGet {
		payload, err := s.service.GetAddableCollaborators(r.Context(), session, projectID)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 4 && parts[3] == "collaborators" && r.Method == http.MethodPost {
		var body struct {
			UUID string `json:"uuid"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddCollaborator(r.Context(), session, projectID, body.UUID)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 5 && parts[3] == "collaborators" && r.Method == http.MethodDelete {
		payload, err := s.service.RemoveCollaborator(r.Context(), session, projectID, parts[4])
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 4 && parts[3] == "publishing" && r.Method == http.MethodPost {
		payload, err := s.service.RequestPublishing(r.Context(), session, projectID)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 4 && parts[3] == "threads" {
		if r.Method == http.MethodPost {
			var body CreateThreadInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateThread(r.Context(), session, projectID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		if r.Method == http.MethodGet {
			kind := strings.TrimSpace(r.URL.Query().Get("kind"))
			payload, err := s.service.GetProjectThreads(r.Context(), session, projectID, kind)
			s.respond(w, payload, err)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 5 && parts[3] == "a11y" && parts[4] == "sections" {
		if r.Method == http.MethodPost {
			var body AddSectionInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddReviewSection(r.Context(), session, projectID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		if r.Method == http.MethodGet {
			payload, err := s.service.GetReviewSections(r.Context(), session, projectID)
			s.respond(w, payload, err)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 6 && parts[3] == "a11y" && parts[4] == "sections" && r.Method == http.MethodPut {
		sectionID := parts[5]
		if !util.IsBase62(sectionID, sectionIDLength) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid section identifier", nil)
			return
		}
		var body struct {
			ItemName string `json:"itemName"`
			Value    bool   `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateReviewItem(r.Context(), session, projectID, sectionID, body.ItemName, body.Value)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 5 && parts[3] == "a11y" && parts[4] == "import" && r.Method == http.MethodPost {
		var body ImportSectionsInput
		_ = decodeBody(r, &body)
		payload, err := s.service.ImportSectionsFromTOC(r.Context(), session, projectID, body)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleThread(w http.ResponseWriter, r *http.Request, session Session, threadID string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodDelete {
		payload, err := s.service.DeleteThread(r.Context(), session, threadID)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 4 && parts[3] == "messages" {
		if r.Method == http.MethodPost {
			var body PostMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.PostMessage(r.Context(), session, threadID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		if r.Method == http.MethodGet {
			payload, err := s.service.GetThreadMessages(r.Context(), session, threadID)
			s.respond(w, payload, err)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// respond writes a service payload or maps the error onto the response
// envelope.
func (s *HTTPServer) respond(w http.ResponseWriter, payload map[string]any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	if s.authpw == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.authpw.SignUp(r.Context(), authpw.SignUpRequest{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	session, err := s.service.IssueSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	if s.authpw == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.authpw.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	session, err := s.service.IssueSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"err":          false,
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"uuid":         session.UserUUID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"err":    true,
		"errMsg": message,
		"code":   code,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Resource not found.", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
