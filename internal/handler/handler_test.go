package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballot-engine/internal/config"
	"ballot-engine/internal/container"
	"ballot-engine/internal/domain"
	"ballot-engine/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type      string                 `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details"`
		RequestID string                 `json:"request_id"`
	} `json:"error"`
}

type testServer struct {
	router   *chi.Mux
	c        *container.Container
	admin    string
	reviewer string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Environment:        "test",
		RedisURL:           "redis://" + mr.Addr(),
		StoreBackend:       config.StoreRedis,
		AuditSink:          config.AuditLog,
		JWTSecret:          "handler-secret",
		DefaultCountryCode: "233",
		ViewLimit:          2,
		PhaseSyncSchedule:  "@every 30s",
		TxMaxAttempts:      3,
	}
	c, err := container.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	admin, err := c.GetAuthService().IssueAdminToken(domain.Actor{ID: "admin-1", Role: domain.RoleOrgAdmin, OrganizationID: "org-1"})
	require.NoError(t, err)
	reviewer, err := c.GetAuthService().IssueAdminToken(domain.Actor{ID: "reviewer-1", Role: domain.RoleReviewer})
	require.NoError(t, err)

	return &testServer{router: NewRouter(c), c: c, admin: admin.Token, reviewer: reviewer.Token}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// readyElection creates an election with one position, two candidates, one
// voter and a window that is open now
func (s *testServer) readyElection(t *testing.T) (electionID, positionID, candidateID, voterKey string) {
	t.Helper()
	const admin = "/api/v1/admin/elections"

	rec, env := s.do(t, http.MethodPost, admin, s.admin, map[string]interface{}{
		"organization_id":   "org-1",
		"name":              "Student Council",
		"counting_mode":     "single_winner",
		"credential_scheme": "email_phone",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e domain.Election
	decodeData(t, env, &e)

	rec, env = s.do(t, http.MethodPost, admin+"/"+e.ID+"/positions", s.admin, map[string]interface{}{"name": "President"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p domain.Position
	decodeData(t, env, &p)

	var first domain.Candidate
	for i, name := range []string{"Ama", "Kofi"} {
		rec, env = s.do(t, http.MethodPost, admin+"/"+e.ID+"/positions/"+p.ID+"/candidates", s.admin, map[string]interface{}{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		if i == 0 {
			decodeData(t, env, &first)
		}
	}

	rec, env = s.do(t, http.MethodPost, admin+"/"+e.ID+"/voters", s.admin, map[string]interface{}{"credential": "Voter@Example.org", "name": "V"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v domain.Voter
	decodeData(t, env, &v)

	now := time.Now().UTC()
	rec, _ = s.do(t, http.MethodPut, admin+"/"+e.ID+"/schedule", s.admin, map[string]interface{}{
		"start": now.Add(-time.Hour),
		"end":   now.Add(time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return e.ID, p.ID, first.ID, v.Key
}

func TestHandlers_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	electionID, positionID, candidateID, voterKey := s.readyElection(t)
	admin := "/api/v1/admin/elections/" + electionID
	vote := "/api/v1/vote/elections/" + electionID

	rec, env := s.do(t, http.MethodPost, admin+"/submit", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr domain.TransitionResult
	decodeData(t, env, &tr)
	assert.False(t, tr.NoOp)
	assert.Equal(t, domain.WorkflowPending, tr.To)

	rec, env = s.do(t, http.MethodPost, admin+"/submit", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, env, &tr)
	assert.True(t, tr.NoOp, "resubmitting is a no-op")

	rec, _ = s.do(t, http.MethodPost, admin+"/approve", s.reviewer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodPost, vote+"/login", "", map[string]string{"credential": "voter@example.org"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session domain.VoterSession
	decodeData(t, env, &session)
	assert.Equal(t, voterKey, session.VoterKey)
	require.NotNil(t, session.Access)
	assert.Equal(t, domain.AccessBallot, session.Access.Mode)

	choices := map[string]interface{}{"choices": map[string][]string{positionID: {candidateID}}}
	rec, env = s.do(t, http.MethodPost, vote+"/ballot", session.Token, choices)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt domain.BallotReceipt
	decodeData(t, env, &receipt)
	assert.Regexp(t, `^BL\d{4}[0-9a-f]{12}$`, receipt.Receipt)

	rec, env = s.do(t, http.MethodPost, vote+"/ballot", session.Token, choices)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Type)

	rec, env = s.do(t, http.MethodPost, vote+"/results-view", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var access domain.ResultsAccess
	decodeData(t, env, &access)
	assert.Equal(t, domain.AccessVoted, access.Mode)

	rec, env = s.do(t, http.MethodGet, admin+"/results", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var results domain.Results
	decodeData(t, env, &results)
	assert.Equal(t, 1, results.TotalVotes)

	rec, env = s.do(t, http.MethodGet, admin+"/history", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.Transition
	decodeData(t, env, &history)
	assert.Len(t, history, 2)
}

func TestHandlers_SetupGuards(t *testing.T) {
	s := newTestServer(t)
	admin := "/api/v1/admin/elections"

	rec, env := s.do(t, http.MethodPost, admin, s.admin, map[string]interface{}{
		"organization_id":   "org-1",
		"name":              "Empty",
		"counting_mode":     "single_winner",
		"credential_scheme": "student_id",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e domain.Election
	decodeData(t, env, &e)

	rec, env = s.do(t, http.MethodPost, admin+"/"+e.ID+"/submit", s.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "requirements_not_met", env.Error.Type)
	assert.ElementsMatch(t, []interface{}{"Voters", "Positions", "Schedule"}, env.Error.Details["missing"])

	s2 := newTestServer(t)
	electionID, _, _, _ := s2.readyElection(t)
	rec, _ = s2.do(t, http.MethodPost, admin+"/"+electionID+"/submit", s2.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s2.do(t, http.MethodPost, admin+"/"+electionID+"/positions", s2.admin, map[string]string{"name": "Treasurer"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "edit_locked", env.Error.Type)
	assert.Equal(t, "under_review", env.Error.Details["reason"])

	rec, env = s2.do(t, http.MethodGet, admin+"/"+electionID+"/edit-status", s2.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.EditStatus
	decodeData(t, env, &status)
	assert.False(t, status.Allowed)
	assert.Equal(t, domain.LockUnderReview, status.Reason)

	rec, env = s2.do(t, http.MethodPost, admin+"/"+electionID+"/reject", s2.reviewer, map[string]string{"reason": "no"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", env.Error.Type)

	rec, _ = s2.do(t, http.MethodPost, admin+"/"+electionID+"/approve", s2.admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "organizers cannot approve their own election")
}

func TestHandlers_VoterManagement(t *testing.T) {
	s := newTestServer(t)
	electionID, _, _, voterKey := s.readyElection(t)
	voters := "/api/v1/admin/elections/" + electionID + "/voters"

	rec, env := s.do(t, http.MethodPost, voters, s.admin, map[string]string{"credential": "voter@example.org"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Type)

	rec, _ = s.do(t, http.MethodPost, voters, s.admin, map[string]string{"credential": "not an email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(t, http.MethodPost, voters+"/"+url.PathEscape(voterKey)+"/replace", s.admin, map[string]string{"credential": "new@example.org"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var successor domain.Voter
	decodeData(t, env, &successor)
	assert.Equal(t, "new@example.org", successor.Key)

	rec, env = s.do(t, http.MethodGet, voters, s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []domain.Voter
	decodeData(t, env, &active)
	assert.Len(t, active, 1)

	rec, env = s.do(t, http.MethodGet, voters+"?include_replaced=true", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []domain.Voter
	decodeData(t, env, &all)
	assert.Len(t, all, 2)

	rec, _ = s.do(t, http.MethodDelete, voters+"/"+url.PathEscape(voterKey), s.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "replaced voters are no longer addressable")

	rec, _ = s.do(t, http.MethodDelete, voters+"/new@example.org", s.admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlers_Authentication(t *testing.T) {
	s := newTestServer(t)
	electionID, positionID, candidateID, _ := s.readyElection(t)

	rec, env := s.do(t, http.MethodGet, "/api/v1/admin/elections/"+electionID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, env.Error.RequestID)

	voterToken, _, err := s.c.GetAuthService().IssueVoterToken(electionID, "voter@example.org")
	require.NoError(t, err)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/admin/elections/"+electionID, voterToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "voter sessions cannot reach admin routes")

	otherToken, _, err := s.c.GetAuthService().IssueVoterToken("another-election", "voter@example.org")
	require.NoError(t, err)
	rec, _ = s.do(t, http.MethodPost, "/api/v1/vote/elections/"+electionID+"/ballot", otherToken,
		map[string]interface{}{"choices": map[string][]string{positionID: {candidateID}}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/vote/elections/"+electionID+"/ballot", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/vote/elections/"+electionID+"/login", "", map[string]string{"credential": "stranger@example.org"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Type)

	rec, env = s.do(t, http.MethodPost, "/api/v1/vote/elections/"+electionID+"/login", "", map[string]string{"credential": "voter@example.org"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "unapproved elections are closed")
	assert.Equal(t, "voting_closed", env.Error.Type)
	assert.Equal(t, "inactive", env.Error.Details["phase"])
}

func TestHandlers_ResolveCredential(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantKey    string
	}{
		{"email", map[string]string{"scheme": "email_phone", "credential": " Voter@Example.ORG "}, http.StatusOK, "voter@example.org"},
		{"local phone", map[string]string{"scheme": "email_phone", "credential": "050 123 4567"}, http.StatusOK, "+233501234567"},
		{"unknown scheme", map[string]string{"scheme": "passport", "credential": "X123"}, http.StatusBadRequest, ""},
		{"missing credential", map[string]string{"scheme": "student_id"}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodPost, "/api/v1/vote/credentials/resolve", "", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				var resolved domain.ResolvedCredential
				decodeData(t, env, &resolved)
				assert.Equal(t, tt.wantKey, resolved.Key)
			}
		})
	}
}

func TestHandlers_RequestValidation(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/admin/elections", s.admin, map[string]interface{}{
		"organization_id":   "org-1",
		"name":              "X",
		"counting_mode":     "ranked_choice",
		"credential_scheme": "email_phone",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", env.Error.Type)
	assert.Equal(t, "min", env.Error.Details["Name"])
	assert.Equal(t, "oneof", env.Error.Details["CountingMode"])

	rec, env = s.do(t, http.MethodPost, "/api/v1/admin/elections", s.admin, map[string]interface{}{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details["body"], "unknown field")
}

func TestHandlers_HealthAndNotFound(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decodeData(t, env, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Checks["store"])
	assert.Equal(t, "ok", health.Checks["redis"])

	rec, env = s.do(t, http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidChoices, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidFormat), http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrSecondaryMismatch, http.StatusUnauthorized},
		{domain.ErrCandidateNotFound, http.StatusNotFound},
		{&domain.EditLockedError{Reason: domain.LockApproved}, http.StatusLocked},
		{&domain.RequirementsNotMetError{Missing: []string{"Voters"}}, http.StatusUnprocessableEntity},
		{domain.ErrAlreadyVoted, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrNotYetStarted, http.StatusForbidden},
		{domain.ErrEnded, http.StatusForbidden},
		{domain.ErrViewLimitExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: retries exhausted", domain.ErrTransactionConflict), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, toAppError(tt.err).StatusCode)
		})
	}
}
