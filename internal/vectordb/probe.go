package vectordb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
)

// Backend names accepted by SelectBackend.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
	BackendAuto   = "auto"
)

// probeTimeout bounds the Qdrant readiness check made in auto mode.
const probeTimeout = 2 * time.Second

// BackendConfig holds what SelectBackend needs to build either store.
type BackendConfig struct {
	Backend string
	Qdrant  QdrantConfig
	DataDir string
}

// SelectBackend chooses the store once at startup. "qdrant" requires a
// reachable server, "memory" always uses the chromem store, and "auto" uses
// Qdrant when its readiness endpoint answers and chromem otherwise.
func SelectBackend(ctx context.Context, cfg BackendConfig, log *logger.Logger) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendAuto
	}

	switch backend {
	case BackendMemory:
		log.Debugf("Using in-process vector store at %q", cfg.DataDir)
		return NewChromemStore(cfg.DataDir)

	case BackendQdrant:
		if cfg.Qdrant.URL == "" {
			return nil, fmt.Errorf("vector_store.qdrant_url is required for the qdrant backend")
		}
		q := NewQdrantStore(cfg.Qdrant)
		if err := q.Ready(ctx); err != nil {
			return nil, fmt.Errorf("qdrant at %s is not ready: %w", cfg.Qdrant.URL, err)
		}
		log.Debugf("Using Qdrant at %s", cfg.Qdrant.URL)
		return q, nil

	case BackendAuto:
		if cfg.Qdrant.URL != "" {
			q := NewQdrantStore(cfg.Qdrant)
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := q.Ready(probeCtx)
			cancel()
			if err == nil {
				log.Debugf("Qdrant reachable at %s", cfg.Qdrant.URL)
				return q, nil
			}
			log.Warnf("Qdrant unavailable at %s (%v); using in-process vector store", cfg.Qdrant.URL, err)
		}
		return NewChromemStore(cfg.DataDir)

	default:
		return nil, fmt.Errorf("unknown vector store backend %q (want qdrant, memory or auto)", cfg.Backend)
	}
}
