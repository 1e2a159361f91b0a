package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/model"
	"github.com/jun/voznota/internal/user"
)

// AuthHandler handles registration, login and the current-user endpoint.
type AuthHandler struct {
	users  *user.Service
	tokens *auth.TokenService
	gate   *auth.Gate
	log    zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *user.Service, tokens *auth.TokenService, gate *auth.Gate, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, gate: gate, log: logging.Component(log, "auth-handler")}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// Register creates an account from a JSON {email, password} body.
func (h *AuthHandler) Register(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body, err := requestBody(req)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	var in registerRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errorResponse(h.log, invalid("Invalid request body")), nil
	}
	if err := validate.Struct(in); err != nil {
		return errorResponse(h.log, validationError(err)), nil
	}

	u, err := h.users.CreateUser(ctx, in.Email, in.Password)
	if err != nil {
		return errorResponse(h.log, err), nil
	}
	return jsonResponse(http.StatusCreated, u), nil
}

// Login verifies credentials sent as a form (username, password) or JSON
// and returns a bearer token. The username field carries the email.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	in, err := parseLogin(req)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	u, ok, err := h.users.Authenticate(ctx, in.Username, in.Password)
	if err != nil {
		return errorResponse(h.log, err), nil
	}
	if !ok {
		h.log.Info().Msg("login rejected")
		return errorResponse(h.log, apperr.ErrInvalidCredentials), nil
	}

	token, err := h.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return errorResponse(h.log, err), nil
	}

	h.log.Info().Str(logging.FieldUserID, u.ID).Msg("login succeeded")
	return jsonResponse(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer", User: *u}), nil
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	u, err := h.gate.Authenticate(ctx, Header(req, "Authorization"))
	if err != nil {
		return errorResponse(h.log, err), nil
	}
	return jsonResponse(http.StatusOK, u), nil
}

func parseLogin(req events.APIGatewayProxyRequest) (loginRequest, error) {
	var in loginRequest

	body, err := requestBody(req)
	if err != nil {
		return in, err
	}

	mt, _, _ := mime.ParseMediaType(Header(req, "Content-Type"))
	if mt == "application/json" {
		if err := json.Unmarshal(body, &in); err != nil {
			return in, invalid("Invalid request body")
		}
	} else {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return in, invalid("Invalid form body")
		}
		in.Username = form.Get("username")
		in.Password = form.Get("password")
	}

	if err := validate.Struct(in); err != nil {
		return in, validationError(err)
	}
	return in, nil
}
