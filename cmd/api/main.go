package main

import (
	"log"

	"paydiag-backend/internal/shared/config"
	"paydiag-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()
	if cfg.DifyAPIKey == "" {
		log.Fatalf("DIFY_API_KEY is required")
	}

	r := server.NewRouter(cfg)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting relay server on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
