package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Header returns the value of a request header, matching the name case-insensitively.
func Header(req events.APIGatewayProxyRequest, name string) string {
	if v, ok := req.Headers[name]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// requestBody returns the raw body, decoding it if API Gateway base64-encoded it.
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, invalid("Body is not valid base64")
	}
	return b, nil
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// errorResponse maps err to a status and a client-safe message. Server-side
// failures are logged with their cause; client errors at debug level.
func errorResponse(log zerolog.Logger, err error) events.APIGatewayProxyResponse {
	status, msg := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	resp := jsonResponse(status, errorBody{Detail: msg})
	if status == http.StatusUnauthorized {
		resp.Headers["WWW-Authenticate"] = "Bearer"
	}
	return resp
}

// invalid returns a 400 error whose message reaches the client verbatim.
func invalid(msg string) error {
	return apperr.Invalid(msg)
}

// validationError turns validator output into a single invalid-input error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid(err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return invalid(strings.Join(fields, "; "))
}
