package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"beanstalk/core"
	"beanstalk/native/bank"
)

func TestProducerRunsSunriseWhenSeasonEnds(t *testing.T) {
	f := newFixture(t)
	head, ok := core.ReadHead(f.db)
	require.True(t, ok)
	keeper := bob
	producer := core.NewProducer(f.p, head, keeper, 0, nil)

	next, err := producer.Step(context.Background(), genesisUnix+120)
	require.NoError(t, err)
	require.Equal(t, uint64(1), next.Height)
	s, err := f.p.Season()
	require.NoError(t, err)
	require.Equal(t, uint32(0), s.Current, "season has not ended")

	next, err = producer.Step(context.Background(), genesisUnix+period)
	require.NoError(t, err)
	require.Equal(t, uint64(2), next.Height)
	s, err = f.p.Season()
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.Current)

	reward, err := f.p.InternalBalance(beanToken, keeper)
	require.NoError(t, err)
	require.False(t, reward.IsZero(), "keeper earns the sunrise incentive")

	stored, ok := core.ReadHead(f.db)
	require.True(t, ok)
	require.Equal(t, next, stored)
	require.Equal(t, next, producer.Head())
}

func TestProducerKeepsTimestampsMonotonic(t *testing.T) {
	f := newFixture(t)
	head, _ := core.ReadHead(f.db)
	producer := core.NewProducer(f.p, head, bob, 0, nil)

	_, err := producer.Step(context.Background(), genesisUnix+500)
	require.NoError(t, err)
	_, err = producer.Step(context.Background(), genesisUnix+10)
	require.NoError(t, err)
	require.Equal(t, uint64(genesisUnix+500), f.p.Block().Timestamp)

	_, err = f.p.Sunrise(context.Background(), bob, bank.Internal)
	require.Error(t, err, "stepping back must not end the season")

	require.Error(t, producer.Run(context.Background()), "zero interval is rejected")
}
