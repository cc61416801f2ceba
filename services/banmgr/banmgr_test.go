package banmgr_test

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/services/banmgr"
	"github.com/stretchr/testify/require"
)

type fakeDisconnector struct {
	disconnected []banmgr.Endpoint
	reasons      []string
}

func (d *fakeDisconnector) Disconnect(endpoint banmgr.Endpoint, reason string) {
	d.disconnected = append(d.disconnected, endpoint)
	d.reasons = append(d.reasons, reason)
}

func TestBanAndDisconnect(t *testing.T) {
	d := &fakeDisconnector{}
	r := banmgr.New(d, banmgr.Config{})
	defer r.Stop()

	require.False(t, r.IsBanned("1.2.3.4:8333"))

	r.BanAndDisconnect("1.2.3.4:8333", time.Hour, "misbehavior")

	require.True(t, r.IsBanned("1.2.3.4:8333"))
	require.Equal(t, []banmgr.Endpoint{"1.2.3.4:8333"}, d.disconnected)
	require.Equal(t, []string{"misbehavior"}, d.reasons)

	reason, until, ok := r.BanInfo("1.2.3.4:8333")
	require.True(t, ok)
	require.Equal(t, "misbehavior", reason)
	require.True(t, until.After(time.Now()))
}

func TestUnbanAndClear(t *testing.T) {
	r := banmgr.New(nil, banmgr.Config{})
	defer r.Stop()

	r.BanAndDisconnect("a", time.Hour, "x")
	r.BanAndDisconnect("b", time.Hour, "y")
	require.True(t, r.IsBanned("a"))

	r.Unban("a")
	require.False(t, r.IsBanned("a"))
	require.True(t, r.IsBanned("b"))

	r.Clear()
	require.False(t, r.IsBanned("b"))
}

func TestBanExpires(t *testing.T) {
	r := banmgr.New(nil, banmgr.Config{})
	defer r.Stop()

	r.BanAndDisconnect("short-lived", 20*time.Millisecond, "test")
	require.True(t, r.IsBanned("short-lived"))

	require.Eventually(t, func() bool {
		return !r.IsBanned("short-lived")
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimiting(t *testing.T) {
	r := banmgr.New(nil, banmgr.Config{MessagesPerSecond: 1, MessageBurst: 2})
	defer r.Stop()

	require.True(t, r.Allow("peer"))
	require.True(t, r.Allow("peer"))
	require.False(t, r.Allow("peer"), "burst of 2 exhausted, third call should be rejected")

	r.ForgetPeer("peer")
	require.True(t, r.Allow("peer"), "forgetting the peer resets its limiter")
}
