// Package api содержит типы запросов и ответов HTTP API сервиса совместного редактирования.
package api

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
	// OperationID операция, записанная в журнал до ошибки ее обработки
	OperationID    string `json:"operation_id,omitempty"`
	SequenceNumber int64  `json:"sequence_number,omitempty"`
}

// TokenResponse представляет выданный access token
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}
