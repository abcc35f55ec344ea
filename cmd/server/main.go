// Command server runs the EPCIS validation engine's HTTP surface: submit
// a document for validation, and look up a prior submission by id.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hudsci/epcis-engine/configs"
	"github.com/hudsci/epcis-engine/internal/persistence"
	"github.com/hudsci/epcis-engine/internal/remediation"
	"github.com/hudsci/epcis-engine/internal/storage"
	"github.com/hudsci/epcis-engine/internal/submission"
)

// authMiddleware checks for a valid API key in the Authorization header or
// X-API-Key header. Auth is disabled entirely when apiKey is empty.
func authMiddleware(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apiKey == "" {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			if strings.TrimPrefix(authHeader, "Bearer ") == apiKey {
				next(w, r)
				return
			}
		}

		if r.Header.Get("X-API-Key") == apiKey {
			next(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := configs.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := persistence.ConnectTiDB(persistence.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		SSL:      cfg.DBSSL,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to TiDB", zap.Error(err))
	}
	defer db.Close()

	directusClient := storage.NewDirectusClient(cfg.CMSBaseURL, cfg.DirectusCMSAPIKey)
	store := storage.NewDirectusStorage(directusClient, cfg.StorageFolderID, logger)
	persist := persistence.NewStore(db)
	notifier := remediation.NewLogNotifier(logger)
	svc := submission.NewService(store, persist, notifier, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/submissions", authMiddleware(cfg.APIKey, makeSubmitHandler(svc, logger)))
	mux.HandleFunc("/submissions/", authMiddleware(cfg.APIKey, makeGetHandler(svc, logger)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("starting epcis validation service",
		zap.String("port", cfg.Port),
		zap.Bool("auth_enabled", cfg.APIKey != ""))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	<-done
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// makeSubmitHandler handles POST /submissions. The body is the raw EPCIS
// document; the supplier id and filename come from headers, and the
// format (xml or json) is read from Content-Type, falling back to the
// X-Document-Format header.
func makeSubmitHandler(svc *submission.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		supplierID := r.Header.Get("X-Supplier-ID")
		if supplierID == "" {
			respondError(w, "X-Supplier-ID header is required", http.StatusBadRequest)
			return
		}
		filename := r.Header.Get("X-Filename")
		if filename == "" {
			filename = "submission"
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			respondError(w, "request body is empty", http.StatusBadRequest)
			return
		}

		isXML := isXMLRequest(r)

		record, err := svc.Submit(r.Context(), body, filename, supplierID, isXML)
		if err != nil {
			logger.Error("submission failed", zap.String("supplier_id", supplierID), zap.Error(err))
			respondError(w, fmt.Sprintf("submission failed: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Submission-ID", record.ID)
		_ = json.NewEncoder(w).Encode(record.Report)
	}
}

// makeGetHandler handles GET /submissions/{id}.
func makeGetHandler(svc *submission.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/submissions/")
		if id == "" {
			respondError(w, "submission id required", http.StatusBadRequest)
			return
		}

		record, err := svc.Get(r.Context(), id)
		if err != nil {
			logger.Warn("submission lookup failed", zap.String("id", id), zap.Error(err))
			respondError(w, fmt.Sprintf("submission %s not found", id), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(record.Report)
	}
}

func isXMLRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "xml") {
		return true
	}
	if strings.Contains(contentType, "json") {
		return false
	}
	return strings.EqualFold(r.Header.Get("X-Document-Format"), "xml")
}

func respondError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
