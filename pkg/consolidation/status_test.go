package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/mickybart/uptimed/pkg/service"
	"github.com/mickybart/uptimed/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatus_ShortFlapStaysOK(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")
	require.True(t, st.UpdateStatus(ctx, svc, service.OK, nil))
	require.True(t, st.UpdateStatus(ctx, svc, service.FAIL, nil)) // opens a downtime right now

	status := NewStatus(st, storage.ServiceFilter{}, 600*time.Second, time.Minute)
	status.computeStatus(ctx)

	records, err := st.AllServices(ctx, storage.ServiceFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].StatusPublic)
	assert.Equal(t, service.OK, *records[0].StatusPublic)
}

func TestComputeStatus_SustainedOutageGoesPublicFail(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")
	require.True(t, st.UpdateStatus(ctx, svc, service.FAIL, nil))

	status := NewStatus(st, storage.ServiceFilter{}, 600*time.Second, time.Minute)
	status.now = func() time.Time { return time.Now().Add(700 * time.Second) }
	status.computeStatus(ctx)

	records, _ := st.AllServices(ctx, storage.ServiceFilter{})
	require.Len(t, records, 1)
	require.NotNil(t, records[0].StatusPublic)
	assert.Equal(t, service.FAIL, *records[0].StatusPublic)
}

func TestComputeStatus_WriteOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")
	require.True(t, st.UpdateStatus(ctx, svc, service.OK, nil))

	status := NewStatus(st, storage.ServiceFilter{}, 600*time.Second, time.Minute)
	status.computeStatus(ctx)
	status.computeStatus(ctx)

	records, _ := st.AllServices(ctx, storage.ServiceFilter{})
	require.Len(t, records, 1)
	require.NotNil(t, records[0].StatusPublic)
	assert.Equal(t, service.OK, *records[0].StatusPublic)
}
