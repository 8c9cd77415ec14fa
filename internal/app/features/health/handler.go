package health

import (
	"context"
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/system/metrics"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client    *mongo.Client
	Snapshots *snapshots.Store
	Metrics   *metrics.Collector
	Log       *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(client *mongo.Client, store *snapshots.Store, collector *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		Client:    client,
		Snapshots: store,
		Metrics:   collector,
		Log:       logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Store    string `json:"store,omitempty"`
	Entries  int    `json:"entries,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`

	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "store":"stashgate-v3", "entries":42 }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…" }
//
// Passing ?detail=1 includes routing counters and latency quantiles.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Snapshots != nil {
		resp.Store = h.Snapshots.Name()
		if n, err := h.Snapshots.Count(); err == nil {
			resp.Entries = n
		}
	}

	if h.Metrics != nil && r.URL.Query().Get("detail") == "1" {
		snap := h.Metrics.Snapshot()
		resp.Metrics = &snap
	}

	_ = json.NewEncoder(w).Encode(resp)
}
