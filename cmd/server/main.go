package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jun/voznota/internal/app"
)

func main() {
	application, cfg, log, err := app.Bootstrap(context.Background(), ".env", "voznota-server")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	http.Handle("/", newGatewayHandler(application.HandleRequest, cfg.MaxFileSize))

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("starting local server")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
