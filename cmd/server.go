package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/telegram"
)

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func statusHandler(p telegram.StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			log.Errorf("Failed to encode status: %v", err)
		}
	}
}

func newServeMux(p telegram.StatusProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/status", statusHandler(p))
	return mux
}

// launchMetricsAndHealthServer serves until ctx is done, then shuts down gracefully.
func launchMetricsAndHealthServer(ctx context.Context, port int, p telegram.StatusProvider) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newServeMux(p),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Launching metrics and health endpoint on :%d", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
