package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

type dbNameRow struct {
	name string
	err  error
}

func (r dbNameRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.name
	return nil
}

type dbNameQuerier struct{ row dbNameRow }

func (q dbNameQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q dbNameQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (q dbNameQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return q.row }

func whoamiRequest(t *tenant.Tenant, d tenant.Designation) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	ctx := tenant.NewScope(tenant.WithTenant(req.Context(), t), d)
	return req.WithContext(ctx)
}

func TestWhoami(t *testing.T) {
	t.Parallel()
	tn := &tenant.Tenant{ID: uuid.New(), RoutingKey: "acme.example.com", UniqueName: "acme"}
	log := slog.New(slog.DiscardHandler)

	t.Run("reports the serving database", func(t *testing.T) {
		t.Parallel()
		d := tenant.TenantDesignation(tn, dbNameQuerier{row: dbNameRow{name: "acme_db"}})
		rec := httptest.NewRecorder()
		whoami(log)(rec, whoamiRequest(tn, d))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp whoamiResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, whoamiResponse{
			TenantID:    tn.ID.String(),
			RoutingKey:  "acme.example.com",
			Designation: "tenant:acme",
			Database:    "acme_db",
		}, resp)
	})

	t.Run("query failure", func(t *testing.T) {
		t.Parallel()
		d := tenant.Designation{Name: tenant.SharedDesignation, DB: dbNameQuerier{row: dbNameRow{err: errors.New("gone")}}}
		rec := httptest.NewRecorder()
		whoami(log)(rec, whoamiRequest(tn, d))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestConnectionStats(t *testing.T) {
	t.Parallel()
	conns := tenant.NewConnections(func(context.Context, *tenant.Tenant) (tenant.Handle, error) {
		return nil, errors.New("unreachable")
	}, tenant.WithIdleTimeout(0))
	t.Cleanup(func() { _ = conns.Close() })

	rec := httptest.NewRecorder()
	connectionStats(conns)(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"open":0,"established":0,"failed":0,"evicted":0,"reaped":0}`, rec.Body.String())
}
