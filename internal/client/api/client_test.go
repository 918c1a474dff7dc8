package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL, "token")

	assert.NotNil(t, client)
	assert.Equal(t, baseURL, client.baseURL)
	assert.Equal(t, "token", client.token)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestClient_CreateDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req api.CreateDocumentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Design notes", req.Title)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Document{ID: "doc-1", OwnerID: "alice", Title: req.Title})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")

	doc, err := client.CreateDocument(context.Background(), "Design notes")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "alice", doc.OwnerID)
}

func TestClient_SessionLifecycle(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions":
			var req api.StartSessionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "exclusive", req.Discipline)

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(api.StartSessionResponse{
				Session: &models.EditSession{ID: "s-1", DocumentID: req.DocumentID, ClientID: "c-1", Active: true},
				Lock:    &models.DocumentLock{ID: "l-1", Discipline: models.DisciplineExclusive, Active: true},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions/s-1/operations":
			var req api.SubmitOperationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "insert", req.Kind)

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(api.SubmitOperationResponse{
				Operation: &models.EditOperation{ID: "op-1", SessionID: "s-1", SequenceNumber: 1, Position: req.Position},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/sessions/s-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL, "t")

	started, err := client.StartSession(ctx, api.StartSessionRequest{DocumentID: "doc-1", Discipline: "exclusive"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", started.Session.ClientID)
	require.NotNil(t, started.Lock)
	assert.Equal(t, "l-1", started.Lock.ID)

	res, err := client.SubmitOperation(ctx, "s-1", api.SubmitOperationRequest{
		Kind:     "insert",
		Content:  "hi",
		Position: models.Position{Line: 3, Character: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Operation.SequenceNumber)
	assert.Equal(t, 3, res.Operation.Position.Line)

	require.NoError(t, client.EndSession(ctx, "s-1"))

	assert.Equal(t, []string{
		"POST /api/v1/sessions",
		"POST /api/v1/sessions/s-1/operations",
		"DELETE /api/v1/sessions/s-1",
	}, calls)
}

func TestClient_Locks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(api.AcquireLockResponse{
				Granted: true,
				Lock:    &models.DocumentLock{ID: "l-7", Discipline: models.DisciplineShared},
			})
		case http.MethodDelete:
			assert.Equal(t, "/api/v1/locks/l-7", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL, "t")

	resp, err := client.AcquireLock(ctx, api.AcquireLockRequest{DocumentID: "doc-1", Discipline: "shared"})
	require.NoError(t, err)
	assert.True(t, resp.Granted)
	assert.Equal(t, "l-7", resp.Lock.ID)

	require.NoError(t, client.ReleaseLock(ctx, "l-7"))
}

func TestClient_Resume(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents/doc-1/resume", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.ResumeResponse{DocumentID: "doc-1", Resumed: true})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "t").Resume(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.True(t, resp.Resumed)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
		wantOpID    string
		wantSeq     int64
		status      int
	}{
		{
			name:        "recorded operation",
			status:      http.StatusInternalServerError,
			body:        `{"error":"Internal Server Error","message":"conflict under exclusive lock","operation_id":"op-3","sequence_number":3}`,
			wantMessage: "conflict under exclusive lock",
			wantOpID:    "op-3",
			wantSeq:     3,
		},
		{
			name:        "json error body",
			status:      http.StatusConflict,
			body:        `{"error":"Conflict","message":"exclusive lock held"}`,
			wantMessage: "exclusive lock held",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "upstream down\n",
			wantMessage: "upstream down",
		},
		{
			name:        "empty body",
			status:      http.StatusForbidden,
			body:        "",
			wantMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "t")
			_, err := client.State(context.Background(), "doc-1")
			require.Error(t, err)
			assert.True(t, IsStatus(err, tt.status))
			assert.False(t, IsStatus(err, http.StatusTeapot))

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantMessage, se.Message)
			assert.Equal(t, tt.wantOpID, se.OperationID)
			assert.Equal(t, tt.wantSeq, se.SequenceNumber)
		})
	}
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", Version: "dev"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(server.URL, "t").Health(ctx)
	assert.Error(t, err)
}
