package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// HealthHandler serves the service info and liveness endpoints.
type HealthHandler struct {
	appName string
	version string
	now     func() time.Time
}

func NewHealthHandler(appName, version string) *HealthHandler {
	return &HealthHandler{appName: appName, version: version, now: time.Now}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type infoResponse struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Health  string `json:"health"`
}

func (h *HealthHandler) Info(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, infoResponse{App: h.appName, Version: h.version, Health: "/health"}), nil
}

func (h *HealthHandler) Health(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, healthResponse{Status: "healthy", Version: h.version, Timestamp: h.now().UTC()}), nil
}
