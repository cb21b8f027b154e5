package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/niravscs/multiple-databases-demo/pkg/logger"
	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

type whoamiResponse struct {
	TenantID    string `json:"tenant_id"`
	RoutingKey  string `json:"routing_key"`
	Designation string `json:"designation"`
	Database    string `json:"database"`
}

// whoami reports which database served the request.
func whoami(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		t := tenant.MustFromContext(ctx)
		d, _ := tenant.Active(ctx)

		resp := whoamiResponse{
			TenantID:    t.ID.String(),
			RoutingKey:  t.RoutingKey,
			Designation: d.Name,
		}
		if d.DB != nil {
			if err := d.DB.QueryRow(ctx, "SELECT current_database()").Scan(&resp.Database); err != nil {
				log.ErrorContext(ctx, "Failed to query current database", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		writeJSON(w, resp)
	}
}

func connectionStats(conns *tenant.Connections) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, conns.Stats())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
