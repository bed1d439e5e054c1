package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRequiresPool(t *testing.T) {
	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "create", Entity: "account", EntityID: "1"}))
	require.ErrorContains(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{}), "not initialised")
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 1000)
	require.Equal(t, 200, p.PerPage)
	require.Equal(t, 5, p.TotalPages)
	require.Equal(t, 400, p.Offset())
}
