package orchestrator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/orchestrator"
	"github.com/Mutter0815/LaunchPro/internal/platform"
	"github.com/Mutter0815/LaunchPro/internal/platform/platformmock"
	"github.com/Mutter0815/LaunchPro/internal/retry"
	"github.com/Mutter0815/LaunchPro/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastRetry = retry.Policy{MaxAttempts: 2, Multiplier: 2}

const link = "https://trk.example.com/c/abc123"

func launchingCampaign(t *testing.T, st *store.Memory, platforms ...campaign.Platform) *campaign.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &campaign.Campaign{ID: "c1", Name: "spring", Status: campaign.StatusDraft}
	for _, p := range platforms {
		c.Platforms = append(c.Platforms, campaign.PlatformSpec{Platform: p, Budget: 500})
	}
	require.NoError(t, st.CreateCampaign(ctx, c))
	approved := "art-1"
	l := link
	ok, err := st.Transition(ctx, c.ID, campaign.StatusDraft, campaign.StatusGeneratingContent,
		campaign.Mutation{ContentApprovedID: &approved, TrackingLink: &l})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = st.SaveGeneratedContent(ctx, c.ID, campaign.GeneratedContent{Headline: "H", PrimaryText: "P"})
	require.NoError(t, err)
	ok, err = st.Transition(ctx, c.ID, campaign.StatusGeneratingContent, campaign.StatusLaunching, campaign.Mutation{})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	return got
}

func TestFanOut_LaunchesEachPlatformOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()

	for _, p := range []campaign.Platform{campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok} {
		m := platformmock.NewMockLauncher(ctrl)
		m.EXPECT().Launch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req platform.LaunchRequest) (platform.LaunchResult, error) {
				assert.Equal(t, platform.IdempotencyKey("c1", p), req.IdempotencyKey)
				assert.Equal(t, link, req.TrackingLink)
				assert.Equal(t, "art-1", req.ApprovedContentID)
				assert.Equal(t, "H", req.Content.Headline)
				return platform.LaunchResult{ExternalCampaignID: "ext-" + string(p)}, nil
			}).Times(1)
		reg.Register(p, m, fastRetry)
	}
	c := launchingCampaign(t, st, campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok)

	fo := orchestrator.NewFanOut(st, reg, 3, time.Second)
	sum, err := fo.FanOut(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, sum.Complete)
	assert.True(t, sum.AllSuccess)
	assert.Len(t, sum.Results, 3)

	// Every platform has a result now, so a second pass launches nothing.
	c2, err := st.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	sum, err = fo.FanOut(context.Background(), c2)
	require.NoError(t, err)
	assert.True(t, sum.Complete)
	assert.Len(t, sum.Results, 3)
}

func TestFanOut_PanicAndFatalAreIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()

	good := platformmock.NewMockLauncher(ctrl)
	good.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(platform.LaunchResult{ExternalCampaignID: "ok-1"}, nil)
	panics := platformmock.NewMockLauncher(ctrl)
	panics.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, platform.LaunchRequest) (platform.LaunchResult, error) { panic("nil map") })
	fatal := platformmock.NewMockLauncher(ctrl)
	fatal.EXPECT().Launch(gomock.Any(), gomock.Any()).
		Return(platform.LaunchResult{}, platform.Fatal(campaign.PlatformTikTok, "launch", errors.New("bad targeting"))).
		Times(1)

	reg.Register(campaign.PlatformTrafficSource, good, fastRetry)
	reg.Register(campaign.PlatformMeta, panics, fastRetry)
	reg.Register(campaign.PlatformTikTok, fatal, fastRetry)
	c := launchingCampaign(t, st, campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok)

	sum, err := orchestrator.NewFanOut(st, reg, 3, time.Second).FanOut(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, sum.Complete)
	assert.False(t, sum.AllSuccess)

	byPlatform := map[campaign.Platform]campaign.PlatformResult{}
	for _, r := range sum.Results {
		byPlatform[r.Platform] = r
	}
	assert.True(t, byPlatform[campaign.PlatformTrafficSource].Success)
	assert.Contains(t, byPlatform[campaign.PlatformMeta].Error, "launcher panic")
	assert.Contains(t, byPlatform[campaign.PlatformTikTok].Error, "bad targeting")
}

func TestFanOut_HeldClaimLeavesLaunchIncomplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()

	meta := platformmock.NewMockLauncher(ctrl)
	meta.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(platform.LaunchResult{ExternalCampaignID: "m"}, nil)
	tiktok := platformmock.NewMockLauncher(ctrl)
	tiktok.EXPECT().Launch(gomock.Any(), gomock.Any()).Times(0)
	reg.Register(campaign.PlatformMeta, meta, fastRetry)
	reg.Register(campaign.PlatformTikTok, tiktok, fastRetry)

	c := launchingCampaign(t, st, campaign.PlatformMeta, campaign.PlatformTikTok)
	ok, err := st.ClaimPlatform(context.Background(), c.ID, campaign.PlatformTikTok, "other-worker", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	sum, err := orchestrator.NewFanOut(st, reg, 3, time.Second).FanOut(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, sum.Complete)
	assert.Len(t, sum.Results, 1)
}

func TestFanOut_UnregisteredPlatformRecordsFailure(t *testing.T) {
	st := store.NewMemory()
	c := launchingCampaign(t, st, campaign.PlatformMeta)

	sum, err := orchestrator.NewFanOut(st, platform.NewRegistry(), 3, time.Second).FanOut(context.Background(), c)
	require.NoError(t, err)
	require.True(t, sum.Complete)
	require.Len(t, sum.Results, 1)
	assert.False(t, sum.Results[0].Success)
	assert.Contains(t, sum.Results[0].Error, "unknown platform")
}

func TestFanOut_RespectsConcurrencyLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()

	var inFlight, peak atomic.Int32
	slow := func(context.Context, platform.LaunchRequest) (platform.LaunchResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return platform.LaunchResult{ExternalCampaignID: "x"}, nil
	}
	for _, p := range []campaign.Platform{campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok} {
		m := platformmock.NewMockLauncher(ctrl)
		m.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(slow)
		reg.Register(p, m, fastRetry)
	}
	c := launchingCampaign(t, st, campaign.PlatformTrafficSource, campaign.PlatformMeta, campaign.PlatformTikTok)

	sum, err := orchestrator.NewFanOut(st, reg, 2, time.Second).FanOut(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, sum.AllSuccess)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOut_PerAttemptTimeoutIsRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()

	hang := platformmock.NewMockLauncher(ctrl)
	hang.EXPECT().Launch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ platform.LaunchRequest) (platform.LaunchResult, error) {
			<-ctx.Done()
			return platform.LaunchResult{}, ctx.Err()
		}).Times(2)
	reg.Register(campaign.PlatformMeta, hang, fastRetry)
	c := launchingCampaign(t, st, campaign.PlatformMeta)

	sum, err := orchestrator.NewFanOut(st, reg, 3, 20*time.Millisecond).FanOut(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	assert.False(t, sum.Results[0].Success)
	assert.Contains(t, sum.Results[0].Error, "deadline exceeded")
}

func TestFanOut_CancelDuringLaunchRecordsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := store.NewMemory()
	reg := platform.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := platformmock.NewMockLauncher(ctrl)
	m.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ platform.LaunchRequest) (platform.LaunchResult, error) {
			cancel()
			return platform.LaunchResult{}, platform.Fatal(campaign.PlatformMeta, "launch", ctx.Err())
		}).Times(1)
	reg.Register(campaign.PlatformMeta, m, fastRetry)
	c := launchingCampaign(t, st, campaign.PlatformMeta)

	sum, err := orchestrator.NewFanOut(st, reg, 3, time.Second).FanOut(ctx, c)
	require.NoError(t, err)
	assert.False(t, sum.Complete)
	assert.Empty(t, sum.Results, "a cancelled launch must stay claimable, not become a failure")
}
