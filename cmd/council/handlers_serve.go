package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelcouncil/council/internal/config"
	"github.com/modelcouncil/council/internal/council"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe implements the serve command logic: load config, wire the
// orchestrator, run the HTTP server until a shutdown signal arrives.
func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"chairman", cfg.Council.ChairmanModelID,
		"models", len(cfg.Council.Models),
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := buildProcessDeps(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize council: %w", err)
	}
	defer deps.Close()

	mux := http.NewServeMux()
	mux.Handle("POST /turns", newTurnsHandler(deps))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("council server started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("council server stopped gracefully")
	return nil
}

// turnRequest is the §6 request body for POST /turns.
type turnRequest struct {
	UserMessage    string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	SelectedModels []string `json:"selected_models,omitempty"`
}

// newTurnsHandler returns the POST /turns handler: it resolves the
// conversation id up front (so it can be set on the response header
// before any body bytes are written), then streams the orchestrator's
// event channel as NDJSON, flushing after every line.
func newTurnsHandler(deps *processDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.UserMessage == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}
		if len(req.SelectedModels) == 0 {
			req.SelectedModels = deps.cfg.Council.DefaultModels
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			conv, err := deps.store.Create(r.Context())
			if err != nil {
				http.Error(w, fmt.Sprintf("failed to create conversation: %v", err), http.StatusInternalServerError)
				return
			}
			conversationID = conv.ID
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("X-Conversation-ID", conversationID)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		events, _ := deps.orch.Run(r.Context(), council.Request{
			UserMessage:    req.UserMessage,
			ConversationID: conversationID,
			SelectedModels: req.SelectedModels,
		})

		out := bufio.NewWriter(w)
		enc := json.NewEncoder(out)
		for event := range events {
			if err := enc.Encode(event); err != nil {
				slog.Warn("failed to encode event", "error", err)
				return
			}
			if err := out.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// =============================================================================
// Config Command Handlers
// =============================================================================

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OK: %s is valid\n", configPath)
	fmt.Fprintf(out, "  chairman: %s\n", cfg.Council.ChairmanModelID)
	fmt.Fprintf(out, "  models: %d\n", len(cfg.Council.Models))
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return nil
}
