package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/dbtest"
	"github.com/smallbiznis/comanda/internal/waiter/domain"
	"github.com/smallbiznis/comanda/internal/waiter/repository"
	"github.com/smallbiznis/comanda/internal/waiter/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWaiterLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := service.New(service.Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)),
	})

	_, err := svc.Create(ctx, domain.CreateWaiterRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	joao, err := svc.Create(ctx, domain.CreateWaiterRequest{Name: "Joao"})
	require.NoError(t, err)
	assert.True(t, joao.Active)
	_, err = svc.Create(ctx, domain.CreateWaiterRequest{Name: "Carla"})
	require.NoError(t, err)

	all, err := svc.List(ctx, domain.ListWaitersRequest{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Carla", all[0].Name)

	toggled, err := svc.Toggle(ctx, joao.ID.String())
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	active, err := svc.List(ctx, domain.ListWaitersRequest{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Carla", active[0].Name)

	require.NoError(t, svc.Delete(ctx, joao.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, joao.ID.String()), domain.ErrNotFound)

	_, err = svc.Get(ctx, "0")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
