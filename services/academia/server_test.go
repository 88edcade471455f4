package academia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"academia-backend/lib/browser"
	"academia-backend/lib/timezone"
	"academia-backend/lib/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testServer(run func(ctx context.Context, req RunRequest) ([]ArtifactResult, error)) (*Server, *Service) {
	gin.SetMode(gin.TestMode)
	issuer := token.NewIssuer("test-secret")
	service := NewService(nil, issuer, browser.Options{}, nil)
	if run != nil {
		service.run = run
	}
	return NewServer(service, issuer), service
}

func postJSON(router *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestScrapeEndpointAcceptsAndReportsStatus(t *testing.T) {
	srv, service := testServer(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		return []ArtifactResult{{Artifact: "attendance", OK: true}}, nil
	})
	router := srv.Router()

	rec := postJSON(router, "/api/scrape", `{"email":"a@srmist.edu.in","password":"pw"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.Job.ID)

	waitTerminal(t, service, accepted.Job.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/status/"+accepted.Job.ID, nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, req)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	require.Equal(t, JobCompleted, status.Job.Status)
	require.Len(t, status.Job.Artifacts, 1)
}

func TestScrapeEndpointConflict(t *testing.T) {
	release := make(chan struct{})
	srv, service := testServer(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		<-release
		return nil, nil
	})
	router := srv.Router()

	first := postJSON(router, "/api/scrape", `{"email":"a@srmist.edu.in","password":"pw"}`, nil)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postJSON(router, "/api/scrape-all", `{"email":"a@srmist.edu.in","password":"pw"}`, nil)
	require.Equal(t, http.StatusConflict, second.Code)

	var conflict struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &conflict))
	require.NotEmpty(t, conflict.Job.ID, "the conflict names the job in flight")

	close(release)
	var accepted struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &accepted))
	waitTerminal(t, service, accepted.Job.ID)
}

func TestScrapeEndpointValidation(t *testing.T) {
	srv, _ := testServer(nil)
	router := srv.Router()

	rec := postJSON(router, "/api/scrape", `{"password":"pw"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, "/api/scrape", `{"email":"not-an-email","password":"pw"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRequiresValidToken(t *testing.T) {
	srv, service := testServer(func(ctx context.Context, req RunRequest) ([]ArtifactResult, error) {
		return nil, nil
	})
	router := srv.Router()

	rec := postJSON(router, "/api/refresh-data", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(router, "/api/refresh-data", `{}`, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	minted, err := token.NewIssuer("test-secret").Mint("a@srmist.edu.in", timezone.Now())
	require.NoError(t, err)
	rec = postJSON(router, "/api/refresh-data", `{}`, map[string]string{"Authorization": "Bearer " + minted})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.Equal(t, "a@srmist.edu.in", accepted.Job.Owner, "the owner comes from the token")
	require.Equal(t, KindAll, accepted.Job.Kind)
	waitTerminal(t, service, accepted.Job.ID)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(nil)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scraper-health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "active_jobs")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
