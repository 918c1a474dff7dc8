package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/pkg/api"
)

// StatusError ответ сервера с кодом вне 2xx
type StatusError struct {
	Message string
	// OperationID операция, которую сервер успел записать до ошибки
	OperationID    string
	SequenceNumber int64
	StatusCode     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus сообщает, вернул ли сервер указанный статус
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient создает новый API клиент; token передается как Bearer
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// CreateDocument регистрирует документ, владельцем становится текущий актор
func (c *Client) CreateDocument(ctx context.Context, title string) (*models.Document, error) {
	var doc models.Document
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/documents", api.CreateDocumentRequest{Title: title}, &doc)
	if err != nil {
		return nil, fmt.Errorf("create document request failed: %w", err)
	}
	return &doc, nil
}

// GrantEdit выдает actorID право редактирования документа
func (c *Client) GrantEdit(ctx context.Context, documentID, actorID string) error {
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/editors"
	if err := c.doRequest(ctx, http.MethodPost, path, api.GrantEditRequest{ActorID: actorID}, nil); err != nil {
		return fmt.Errorf("grant edit request failed: %w", err)
	}
	return nil
}

// State возвращает состояние совместной работы над документом
func (c *Client) State(ctx context.Context, documentID string) (*api.StateResponse, error) {
	var resp api.StateResponse
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/state"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	return &resp, nil
}

// Resume снимает остановку документа; доступно только владельцу
func (c *Client) Resume(ctx context.Context, documentID string) (*api.ResumeResponse, error) {
	var resp api.ResumeResponse
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/resume"
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("resume request failed: %w", err)
	}
	return &resp, nil
}

// StartSession открывает сессию редактирования
func (c *Client) StartSession(ctx context.Context, req api.StartSessionRequest) (*api.StartSessionResponse, error) {
	var resp api.StartSessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sessions", req, &resp); err != nil {
		return nil, fmt.Errorf("start session request failed: %w", err)
	}
	return &resp, nil
}

// EndSession завершает сессию
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil); err != nil {
		return fmt.Errorf("end session request failed: %w", err)
	}
	return nil
}

// SubmitOperation отправляет операцию в сессию
func (c *Client) SubmitOperation(ctx context.Context, sessionID string, req api.SubmitOperationRequest) (*api.SubmitOperationResponse, error) {
	var resp api.SubmitOperationResponse
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/operations"
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("submit operation request failed: %w", err)
	}
	return &resp, nil
}

// AcquireLock запрашивает блокировку
func (c *Client) AcquireLock(ctx context.Context, req api.AcquireLockRequest) (*api.AcquireLockResponse, error) {
	var resp api.AcquireLockResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/locks", req, &resp); err != nil {
		return nil, fmt.Errorf("acquire lock request failed: %w", err)
	}
	return &resp, nil
}

// ReleaseLock освобождает блокировку
func (c *Client) ReleaseLock(ctx context.Context, lockID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/locks/"+url.PathEscape(lockID), nil, nil); err != nil {
		return fmt.Errorf("release lock request failed: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return &StatusError{
				StatusCode:     resp.StatusCode,
				Message:        errResp.Message,
				OperationID:    errResp.OperationID,
				SequenceNumber: errResp.SequenceNumber,
			}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
