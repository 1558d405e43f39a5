package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Service is a single-operator credential check implementing
// server.RouteRegistrar (consumer-side interface: RegisterRoutes +
// Middleware), the same shape NetVantage's own auth package fills.
type Service struct {
	tokens       *TokenService
	username     string
	passwordHash string
	logger       *zap.Logger
}

// NewService builds a Service backed by a single configured operator
// account. Passing an empty passwordHash disables login entirely (the
// middleware still rejects every request, since no token can ever validate).
func NewService(tokens *TokenService, username, passwordHash string, logger *zap.Logger) *Service {
	return &Service{tokens: tokens, username: username, passwordHash: passwordHash, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// RegisterRoutes registers the login endpoint.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if s.passwordHash == "" || req.Username != s.username || !CheckPassword(s.passwordHash, req.Password) {
		s.logger.Warn("rejected login attempt", zap.String("username", req.Username))
		writeAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.IssueAccessToken(s.username, RoleAdmin)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "failed to issue access token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.ttl / time.Second),
	})
}
