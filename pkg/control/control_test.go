package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		frame string
		want  Kind
	}{
		{"TERMINATE", KindTerminate},
		{"terminate", KindTerminate},
		{"TeRmInAtE", KindTerminate},
		{"TERMINATED", KindData},
		{"PEER:ENTER:x", KindPeer},
		{"peer:exit:x", KindPeer},
		{"PEE", KindData},
		{"\x1f\x8b\x08\x00", KindData},
		{"", KindData},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.frame)))
		})
	}
}

func TestParsePeer(t *testing.T) {
	t.Run("Enter", func(t *testing.T) {
		m := ParsePeer("PEER:ENTER:8E02F1C6A0B34E7D9A1B2C3D4E5F6071:tcp:127.0.0.1:12300:tcp:127.0.0.1:12301")
		require.NotNil(t, m)

		assert.Equal(t, PeerEnter, m.Event)
		assert.Equal(t, "8E02F1C6A0B34E7D9A1B2C3D4E5F6071", m.ID)
		assert.Equal(t, "tcp://127.0.0.1:12300", m.PublisherAddress())
		assert.Equal(t, "tcp://127.0.0.1:12301", m.ReceiverAddress())
	})

	t.Run("CaseInsensitiveKeyword", func(t *testing.T) {
		m := ParsePeer("peer:exit:ABC:tcp:10.0.0.1:1:tcp:10.0.0.1:2")
		require.NotNil(t, m)
		assert.Equal(t, PeerExit, m.Event)
	})

	t.Run("Wildcards", func(t *testing.T) {
		m := ParsePeer("PEER:ENTER:ABC:*:10.0.0.1:*:tcp:*:")
		require.NotNil(t, m)
		assert.Equal(t, "*://10.0.0.1", m.PublisherAddress())
		assert.Equal(t, "tcp://*", m.ReceiverAddress())
	})

	t.Run("UnknownEventStillParses", func(t *testing.T) {
		m := ParsePeer("PEER:JOIN:ABC:tcp:h:1:tcp:h:2")
		require.NotNil(t, m)
		assert.Equal(t, "JOIN", m.Event)
	})

	malformed := []string{
		"PEER:ENTER:ABC:tcp:127.0.0.1:12300:tcp:127.0.0.1",
		"PEER:ENTER:ABC:tcp:127.0.0.1:12300:tcp:127.0.0.1:12301:extra",
		"PEER:ENTER::tcp:h:1:tcp:h:2",
		"PEER:ENTER:ABC:tcp:h:port:tcp:h:2",
		"PEER:ENTER:A B:tcp:h:1:tcp:h:2",
		"PEERS:ENTER:ABC:tcp:h:1:tcp:h:2",
		"",
	}
	for _, frame := range malformed {
		t.Run("Malformed/"+frame, func(t *testing.T) {
			assert.Nil(t, ParsePeer(frame))
		})
	}
}

func TestFormatPeerRoundTrip(t *testing.T) {
	in := PeerMessage{
		Event:     "enter",
		ID:        "ABC",
		Publisher: Endpoint{Protocol: "tcp", Host: "192.168.1.5", Port: "19791"},
		Receiver:  Endpoint{Protocol: "tcp", Host: "192.168.1.5"},
	}

	frame := FormatPeer(in)
	assert.Equal(t, "PEER:ENTER:ABC:tcp:192.168.1.5:19791:tcp:192.168.1.5:*", frame)

	out := ParsePeer(frame)
	require.NotNil(t, out)
	assert.Equal(t, "tcp://192.168.1.5:19791", out.PublisherAddress())
	assert.Equal(t, "tcp://192.168.1.5", out.ReceiverAddress())
}

func TestParseReply(t *testing.T) {
	hash := "0A4D55A8D778E5022FAB701977C5D840BBC486D0"

	r, err := ParseReply(FormatReply(ReplyAccepted, hash))
	require.NoError(t, err)
	assert.True(t, r.Accepted())
	assert.Equal(t, hash, r.Hash)

	r, err = ParseReply([]byte("nok:0a4d55a8d778e5022fab701977c5d840bbc486d0"))
	require.NoError(t, err)
	assert.False(t, r.Accepted())
	assert.Equal(t, hash, r.Hash)

	r, err = ParseReply([]byte("OOK"))
	require.NoError(t, err)
	assert.Empty(t, r.Hash)

	_, err = ParseReply([]byte("WAT:123"))
	assert.ErrorIs(t, err, ErrMalformedReply)

	_, err = ParseReply([]byte("OK"))
	assert.ErrorIs(t, err, ErrMalformedReply)
}
