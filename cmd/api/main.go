package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jun/voznota/internal/app"
)

func main() {
	application, _, log, err := app.Bootstrap(context.Background(), ".env", "voznota-api")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	lambda.Start(application.HandleRequest)
}
