package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"conductor/api/internal/store"
)

func testServer(fs *fakeStore) (*HTTPServer, *Service) {
	svc := newTestService(fs)
	return NewHTTPServer(svc, nil, "*"), svc
}

func issueToken(t *testing.T, svc *Service, uuid string) string {
	t.Helper()
	session, err := svc.IssueSession(context.Background(), store.User{UUID: uuid, FirstName: "Test"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpointDatabaseFailure(t *testing.T) {
	server, _ := testServer(&fakeStore{
		pingFn: func(context.Context) error {
			return errors.New("connection refused")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status := response["status"]; status != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", status)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	server, _ := testServer(&fakeStore{})

	paths := []string{
		"/api/projects/all",
		"/api/projects/abcdef1234",
		"/api/orgtags",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rr.Code)
		}

		var response map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("%s: failed to parse response: %v", path, err)
		}
		if response["err"] != true {
			t.Errorf("%s: expected err=true envelope, got %v", path, response)
		}
		if response["code"] != "UNAUTHORIZED" {
			t.Errorf("%s: expected code UNAUTHORIZED, got %v", path, response["code"])
		}
	}
}

func TestProjectIDFormatRejected(t *testing.T) {
	server, svc := testServer(&fakeStore{})
	token := issueToken(t, svc, "u1")

	for _, path := range []string{
		"/api/projects/short",
		"/api/projects/waytoolongforanid",
		"/api/projects/bad-chars!!",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", path, rr.Code)
		}
	}
}

func TestGetProjectNotFoundEnvelope(t *testing.T) {
	server, svc := testServer(&fakeStore{})
	token := issueToken(t, svc, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/abcdef1234", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["err"] != true || response["code"] != "NOT_FOUND" {
		t.Errorf("unexpected error envelope %v", response)
	}
	if _, ok := response["errMsg"].(string); !ok {
		t.Error("expected errMsg string in envelope")
	}
}

func TestGetProjectSuccess(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			project := privateProject("u1")
			return project, nil
		},
	}
	server, svc := testServer(fs)
	token := issueToken(t, svc, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/abcdef1234", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["err"] != false {
		t.Errorf("expected err=false, got %v", response["err"])
	}
	project, ok := response["project"].(map[string]any)
	if !ok {
		t.Fatalf("expected project object, got %v", response["project"])
	}
	if project["projectID"] != "abcdef1234" {
		t.Errorf("unexpected project payload %v", project)
	}
}

func TestListUserProjectsRoute(t *testing.T) {
	fs := &fakeStore{
		listUserProjectsFn: func(_ context.Context, uuid string) ([]store.Project, error) {
			if uuid != "u1" {
				t.Errorf("expected lookup for u1, got %q", uuid)
			}
			return []store.Project{privateProject("u1")}, nil
		},
	}
	server, svc := testServer(fs)
	token := issueToken(t, svc, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["err"] != false {
		t.Errorf("expected err=false, got %v", response["err"])
	}
	projects, ok := response["projects"].([]any)
	if !ok || len(projects) != 1 {
		t.Fatalf("expected one project in payload, got %v", response["projects"])
	}
}

func TestSignInUnavailableWithoutAuthService(t *testing.T) {
	server, _ := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestCORSAndRequestIDHeaders(t *testing.T) {
	server, _ := testServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}
