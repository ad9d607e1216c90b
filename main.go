package main

import (
	"context"
	"log"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus-client/internal/api"
	"campus-client/internal/cache"
	"campus-client/internal/chat"
	"campus-client/internal/config"
	"campus-client/internal/observability"
	"campus-client/internal/session"
	"campus-client/internal/transport"
	"campus-client/internal/tui"
)

func main() {
	cfg := config.Load()

	sess := session.NewStore(cfg.CredentialsFile)
	auth := api.NewAuthClient(cfg.BaseURL(), sess)
	client := api.NewClient(cfg.BaseURL(), sess, auth)
	store := cache.NewStore()
	dialer := transport.NewDialer(cfg.SocketURL(), sess)
	controller := chat.NewController(client, store, dialer, sess)

	if cfg.DebugAddr != "" {
		shutdown := observability.SetupTracing()
		defer shutdown(context.Background())

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.DebugAddr, mux); err != nil {
				log.Printf("debug server error: %v", err)
			}
		}()
	}

	app := tui.NewApp(tui.Deps{
		Session:    sess,
		API:        client,
		Auth:       auth,
		Store:      store,
		Controller: controller,
	})

	program := tea.NewProgram(app, tea.WithAltScreen())
	controller.OnChange(func() {
		program.Send(tui.ChatChangedMsg{})
	})

	if _, err := program.Run(); err != nil {
		log.Fatalf("program error: %v", err)
	}
	controller.Leave()
}
