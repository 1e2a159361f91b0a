// Package app wires configuration, AWS clients, services and handlers, and
// routes API Gateway proxy requests.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/auth"
	"github.com/jun/voznota/internal/config"
	"github.com/jun/voznota/internal/crypto"
	"github.com/jun/voznota/internal/handler"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/render"
	"github.com/jun/voznota/internal/secret"
	"github.com/jun/voznota/internal/speech"
	"github.com/jun/voznota/internal/store"
	"github.com/jun/voznota/internal/transcribe"
	"github.com/jun/voznota/internal/user"
)

const devJWTSecret = "dev-secret-change-me"

// App holds the dependencies for the Lambda function.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	authHandler       *handler.AuthHandler
	noteHandler       *handler.NoteHandler
	transcribeHandler *handler.TranscribeHandler
	searchHandler     *handler.SearchHandler
	healthHandler     *handler.HealthHandler
	apiGatewaySecret  string
}

// deps are the external collaborators NewApp builds from the environment.
type deps struct {
	dynamo     store.DynamoAPI
	encryptor  crypto.Encryptor
	resolver   secret.Resolver
	recognizer speech.Recognizer
}

// NewApp initializes the application dependencies. Long-lived SDK clients
// are created once here and shared by every request.
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var d deps

	// DynamoDB: DEV_MODE without LocalStack keeps everything in memory.
	if cfg.DevMode && cfg.AWSEndpointURL == "" {
		log.Warn().Msg("DEV_MODE without AWS_ENDPOINT_URL: using in-memory tables")
	} else {
		d.dynamo = dynamodb.NewFromConfig(awsCfg)
	}

	if cfg.DevMode {
		d.encryptor = crypto.NewMockEncryptor()
		d.resolver = secret.NewCachingResolver(secret.NewEnvResolver())
		log.Info().Msg("using MockEncryptor and EnvResolver (DEV_MODE)")
	} else {
		d.encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
		d.resolver = secret.NewCachingResolver(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)))
	}

	d.recognizer, err = newRecognizer(ctx, cfg, d.resolver, log)
	if err != nil {
		return nil, err
	}

	return assemble(ctx, cfg, log, d)
}

func newRecognizer(ctx context.Context, cfg *config.Config, resolver secret.Resolver, log zerolog.Logger) (speech.Recognizer, error) {
	switch cfg.SpeechProvider {
	case "google":
		key, err := requiredSecret(ctx, resolver, cfg.GoogleSpeechAPIKeyParam, cfg.DevMode, "")
		if err != nil {
			return nil, err
		}
		log.Info().Str("language", cfg.GoogleSpeechLanguage).Msg("using Google Cloud Speech")
		return speech.NewGoogle(ctx, speech.GoogleConfig{
			APIKey:   key,
			Language: cfg.GoogleSpeechLanguage,
			Timeout:  cfg.SpeechTimeout,
		})
	default:
		key, err := requiredSecret(ctx, resolver, cfg.WatsonAPIKeyParam, cfg.DevMode, "")
		if err != nil {
			return nil, err
		}
		if cfg.WatsonURL == "" {
			log.Warn().Msg("WATSON_STT_URL is empty: transcription requests will fail")
		}
		log.Info().Str("model", cfg.WatsonModel).Msg("using Watson Speech to Text")
		return speech.NewWatson(speech.WatsonConfig{
			URL:     cfg.WatsonURL,
			APIKey:  key,
			IAMURL:  cfg.WatsonIAMURL,
			Model:   cfg.WatsonModel,
			Timeout: cfg.SpeechTimeout,
		}), nil
	}
}

// requiredSecret resolves a secret that must be set in production. In
// DEV_MODE a missing value falls back to devDefault.
func requiredSecret(ctx context.Context, r secret.Resolver, name string, devMode bool, devDefault string) (string, error) {
	v, err := r.GetSecret(ctx, name)
	if err == nil {
		return v, nil
	}
	if devMode && errors.Is(err, secret.ErrNotSet) {
		return devDefault, nil
	}
	return "", fmt.Errorf("resolve secret %s: %w", name, err)
}

func assemble(ctx context.Context, cfg *config.Config, log zerolog.Logger, d deps) (*App, error) {
	jwtSecret, err := requiredSecret(ctx, d.resolver, cfg.JWTSecretParam, cfg.DevMode, devJWTSecret)
	if err != nil {
		return nil, err
	}
	if jwtSecret == devJWTSecret {
		log.Warn().Msg("JWT secret not set, using development default")
	}

	apiGatewaySecret, err := secret.GetOrDefault(ctx, d.resolver, cfg.APIGatewaySecretParam, "")
	if err != nil {
		return nil, fmt.Errorf("resolve secret %s: %w", cfg.APIGatewaySecretParam, err)
	}

	userTable := store.NewUserTable(d.dynamo, cfg.UsersTable)
	noteTable := store.NewNoteTable(d.dynamo, cfg.TranscriptionsTable, cfg.TranscriptionsOwnerIndex, d.encryptor)

	users := user.NewService(userTable, cfg.BcryptCost, log)
	tokens, err := auth.NewTokenService(jwtSecret, cfg.JWTAlgorithm, cfg.TokenTTL, users)
	if err != nil {
		return nil, err
	}
	gate := auth.NewGate(tokens)
	client := transcribe.NewClient(d.recognizer, log)

	return &App{
		cfg:               cfg,
		log:               logging.Component(log, "router"),
		authHandler:       handler.NewAuthHandler(users, tokens, gate, log),
		noteHandler:       handler.NewNoteHandler(gate, noteTable, render.NewRenderer(), cfg.NotesListLimit, log),
		transcribeHandler: handler.NewTranscribeHandler(gate, client, noteTable, cfg.MaxFileSize, cfg.AllowedAudioFormats, log),
		searchHandler:     handler.NewSearchHandler(gate, noteTable, log),
		healthHandler:     handler.NewHealthHandler(cfg.AppName, cfg.AppVersion),
		apiGatewaySecret:  apiGatewaySecret,
	}, nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	resp := app.route(ctx, req)

	app.log.Info().
		Str("method", req.HTTPMethod).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str(logging.FieldRequestID, req.RequestContext.RequestID).
		Dur("duration", time.Since(start)).
		Msg("request")

	return app.corsResponse(resp), nil
}

func (app *App) route(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	path := req.Path
	method := req.HTTPMethod

	// CORS Preflight
	if method == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}

	// Requests must come through CloudFront when an origin secret is configured.
	if app.apiGatewaySecret != "" && !app.cfg.DevMode {
		got := handler.Header(req, "X-Origin-Verify")
		if subtle.ConstantTimeCompare([]byte(got), []byte(app.apiGatewaySecret)) != 1 {
			app.log.Warn().Str("path", path).Msg("missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusForbidden, Body: "Forbidden: Access denied"}
		}
	}

	path = strings.TrimPrefix(path, "/api")
	if path == "" {
		path = "/"
	}
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	switch {
	case path == "/" && method == http.MethodGet:
		return app.must(app.healthHandler.Info(ctx, req))
	case path == "/health" && method == http.MethodGet:
		return app.must(app.healthHandler.Health(ctx, req))

	case path == "/auth/register" && method == http.MethodPost:
		return app.must(app.authHandler.Register(ctx, req))
	case path == "/auth/login" && method == http.MethodPost:
		return app.must(app.authHandler.Login(ctx, req))
	case path == "/auth/me" && method == http.MethodGet:
		return app.must(app.authHandler.Me(ctx, req))

	case path == "/transcribe" && method == http.MethodPost:
		return app.must(app.transcribeHandler.Transcribe(ctx, req))

	case path == "/notes" && method == http.MethodGet:
		return app.must(app.noteHandler.ListNotes(ctx, req))
	case path == "/notes/search" && method == http.MethodGet:
		return app.must(app.searchHandler.Search(ctx, req))
	case strings.HasPrefix(path, "/notes/"):
		id := strings.Trim(strings.TrimPrefix(path, "/notes/"), "/")
		if id == "" || strings.Contains(id, "/") {
			break
		}
		req.PathParameters["id"] = id
		switch method {
		case http.MethodGet:
			return app.must(app.noteHandler.GetNote(ctx, req))
		case http.MethodDelete:
			return app.must(app.noteHandler.DeleteNote(ctx, req))
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, req.Path),
	}
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,If-Match"
	return resp
}

// must unwraps a handler response, turning a returned error into a 500.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
