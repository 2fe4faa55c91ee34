package gossip

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/peerstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestTransport(t *testing.T, ctx context.Context) *Transport {
	tr, err := New(ctx, nil, Config{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
		Topic:       "amunchain/consensus/test",
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTransportPublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestTransport(t, ctx)
	b := newTestTransport(t, ctx)

	bInfo := peer.AddrInfo{ID: b.Host().ID(), Addrs: b.Host().Addrs()}
	a.Host().Peerstore().AddAddrs(bInfo.ID, bInfo.Addrs, peerstore.PermanentAddrTTL)
	require.NoError(t, a.Host().Connect(ctx, bInfo))

	// Allow gossipsub's mesh to form before publishing.
	time.Sleep(500 * time.Millisecond)

	framesB := b.Frames(ctx)
	require.NoError(t, a.Publish(ctx, []byte("hello")))

	select {
	case f := <-framesB:
		require.Equal(t, []byte("hello"), f.Data)
		require.Equal(t, a.Host().ID(), f.From)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for gossip frame")
	}
}

func TestSelfPublishedFramesAreNotReingested(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestTransport(t, ctx)
	frames := a.Frames(ctx)

	require.NoError(t, a.Publish(ctx, []byte("self-message")))

	select {
	case f := <-frames:
		t.Fatalf("unexpected self-originated frame: %+v", f)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDigestKeyTruncatesLongPayloads(t *testing.T) {
	short := digestKey([]byte("small"))
	require.Len(t, short, 5)

	big := make([]byte, 1000)
	require.Len(t, digestKey(big), 64)
}
