package trial

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
)

// expireWithNegativeFeedback takes user 1 through the first window and a
// negative answer, leaving the clock at the expiry instant.
func expireWithNegativeFeedback(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	h.startTrial(t, 1)
	h.clk.Set(t0.Add(15 * day))
	_, err := h.svc.DailySweep(ctx)
	require.NoError(t, err)
	require.Equal(t, lifecycle.OutcomeOK, h.svc.SubmitFeedback(ctx, 1, false).Outcome)
}

func messageIDs(arts []domain.Artifact) []int {
	out := make([]int, 0, len(arts))
	for _, a := range arts {
		out = append(out, a.MessageID)
	}
	return out
}

func TestPurgeSweep_ExtensionGrantedBeforeReloadKeepsContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expireWithNegativeFeedback(t, h)
	before, err := h.repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, before, 2)

	repo := h.hooked()
	var once sync.Once
	repo.beforeGetUser = func(userID int64) {
		once.Do(func() {
			assert.Equal(t, lifecycle.OutcomeOK, h.svc.GrantExtension(ctx, userID).Outcome)
		})
	}

	run, err := h.svc.PurgeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Scanned)
	assert.Equal(t, 1, run.Skipped)
	assert.Empty(t, h.msg.deleted)

	n, err := h.repo.CountArtifacts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "both windows keep their content while the extension runs")
}

func TestPurgeSweep_ExtensionGrantedDuringPurgeKeepsItsContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expireWithNegativeFeedback(t, h)
	old, err := h.repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, old, 2)

	repo := h.hooked()
	var once sync.Once
	repo.beforeListArtifacts = func(userID int64) {
		once.Do(func() {
			assert.Equal(t, lifecycle.OutcomeOK, h.svc.GrantExtension(ctx, userID).Outcome)
		})
	}

	run, err := h.svc.PurgeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Applied)

	left, err := h.repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, left, 2, "content of the extension survives")
	for _, id := range messageIDs(left) {
		assert.NotContains(t, h.msg.deleted, id)
		assert.NotContains(t, messageIDs(old), id)
	}
	assert.ElementsMatch(t, messageIDs(old), h.msg.deleted)
	assert.Equal(t, domain.StatusTrialActive, h.user(t, 1).Status)

	// Once the extension lapses the rest goes too.
	h.clk.Advance(day)
	_, err = h.svc.DailySweep(ctx)
	require.NoError(t, err)
	run, err = h.svc.PurgeSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Applied)
	n, err := h.repo.CountArtifacts(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDailySweep_PerUserFailuresAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		h.startTrial(t, id)
	}

	repo := h.hooked()
	repo.failUpdate = map[int64]bool{2: true}
	h.msg.failSend = map[int64]bool{10: true}
	h.clk.Set(t0.Add(15 * day))

	run, err := h.svc.DailySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 2, run.Applied)
	assert.Zero(t, run.Skipped)
	assert.Equal(t, 1, run.Failed)

	latest, err := h.repo.LatestRun(ctx, domain.RunDaily)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 1, latest.Failed)

	// Blocked chat: the expiry stands, no prompt handle is stored.
	u1 := h.user(t, 1)
	assert.Equal(t, domain.StatusTrialExpired, u1.Status)
	assert.Nil(t, u1.FeedbackMessageID)

	// Failed commit: nothing changed, nothing sent.
	u2 := h.user(t, 2)
	assert.Equal(t, domain.StatusTrialActive, u2.Status)
	assert.Equal(t, []string{lifecycle.ReasonTrialStarted}, reasons(u2))

	u3 := h.user(t, 3)
	assert.Equal(t, domain.StatusTrialExpired, u3.Status)
	require.NotNil(t, u3.FeedbackMessageID)
	assert.Equal(t, 1, h.msg.countText(feedbackPromptText))

	// The next tick picks up the user that failed.
	repo.failUpdate = nil
	run, err = h.svc.DailySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Scanned)
	assert.Equal(t, 1, run.Applied)
	assert.Equal(t, domain.StatusTrialExpired, h.user(t, 2).Status)
}
