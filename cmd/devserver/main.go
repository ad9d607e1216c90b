package main

import (
	"log"
	"os"

	"campus-client/internal/devserver"
)

func main() {
	secret := getEnv("DEVSERVER_SECRET", "campus-dev-secret")
	port := getEnv("PORT", "8000")

	server := devserver.New(secret)
	log.Printf("devserver listening on :%s", port)
	if err := server.Router().Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
