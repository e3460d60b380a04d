package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/model"
)

func TestDealsRoundTripThroughPipeline(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateDeal(ctx, &model.Deal{
		ID:         "deal-1",
		TenantID:   "t1",
		CustomerID: "cust-1",
		Title:      "Pedido corporativo",
		Stage:      model.DealStageNew,
		Value:      1200,
	}))
	require.NoError(t, st.CreateDeal(ctx, &model.Deal{
		ID:         "deal-2",
		TenantID:   "t1",
		CustomerID: "cust-2",
		Title:      "Proposta de revenda",
		Stage:      model.DealStageProposal,
		Value:      5400,
	}))

	all, err := st.ListDeals(ctx, "t1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := st.ListDeals(ctx, "t1", "cust-2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "deal-2", one[0].ID)

	// Other tenants see nothing.
	none, err := st.ListDeals(ctx, "t2", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHasAdvancedDealTracksStage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateDeal(ctx, &model.Deal{
		ID:         "deal-1",
		TenantID:   "t1",
		CustomerID: "cust-1",
		Title:      "Primeiro contato",
		Stage:      model.DealStageQualified,
	}))

	advanced, err := st.HasAdvancedDeal(ctx, "t1", "cust-1")
	require.NoError(t, err)
	assert.False(t, advanced)

	require.NoError(t, st.CreateDeal(ctx, &model.Deal{
		ID:         "deal-2",
		TenantID:   "t1",
		CustomerID: "cust-1",
		Title:      "Proposta enviada",
		Stage:      model.DealStageNegotiation,
	}))

	advanced, err = st.HasAdvancedDeal(ctx, "t1", "cust-1")
	require.NoError(t, err)
	assert.True(t, advanced)
}
