package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrs-protocol/tdrs-go/pkg/control"
)

func TestEncodeDecodeRelayTXT(t *testing.T) {
	info := &RelayInfo{
		ID:                "relay-1",
		PublisherProtocol: "tcp",
		PublisherPort:     5555,
		ReceiverProtocol:  "tcp",
		ReceiverPort:      5556,
	}

	txt, err := EncodeRelayTXT(info)
	require.NoError(t, err)
	assert.Equal(t, "relay-1", txt[TXTKeyID])
	assert.Equal(t, DefaultGroup, txt[TXTKeyGroup])
	assert.Equal(t, "5555", txt[TXTKeyPublisherPort])

	strs := TXTRecordsToStrings(txt)
	assert.Equal(t, []string{
		"X-PUB-PORT=5555",
		"X-PUB-PTCL=tcp",
		"X-REC-PORT=5556",
		"X-REC-PTCL=tcp",
		"grp=TDRS",
		"id=relay-1",
	}, strs)

	got, err := DecodeRelayTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, "relay-1", got.ID)
	assert.Equal(t, DefaultGroup, got.Group)
	assert.Equal(t, uint16(5555), got.PublisherPort)
	assert.Equal(t, uint16(5556), got.ReceiverPort)
}

func TestEncodeRelayTXTInvalid(t *testing.T) {
	_, err := EncodeRelayTXT(&RelayInfo{})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = EncodeRelayTXT(&RelayInfo{ID: "a:b"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDecodeRelayTXTInvalid(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"NoID", TXTRecordMap{TXTKeyPublisherPort: "1"}, ErrMissingID},
		{"BadID", TXTRecordMap{TXTKeyID: "x y"}, ErrInvalidID},
		{"BadPort", TXTRecordMap{TXTKeyID: "x", TXTKeyReceiverPort: "70000"}, ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRelayTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStringsToTXTRecordsFlag(t *testing.T) {
	txt := StringsToTXTRecords([]string{"flag", "k=v=w", ""})
	assert.Equal(t, TXTRecordMap{"flag": "", "k": "v=w"}, txt)
}

func TestInstanceNameTruncated(t *testing.T) {
	id := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghijklmnop"
	name := InstanceName(&RelayInfo{ID: id})
	assert.Len(t, name, MaxInstanceNameLen)
	assert.Equal(t, "TDRS-abc", name[:8])
}

func relayService(instance, id string, addrs ...string) RelayService {
	txt := TXTRecordMap{
		TXTKeyID:                id,
		TXTKeyGroup:             DefaultGroup,
		TXTKeyPublisherProtocol: "tcp",
		TXTKeyPublisherPort:     "5555",
		TXTKeyReceiverProtocol:  "tcp",
		TXTKeyReceiverPort:      "5556",
	}
	info, _ := DecodeRelayTXT(txt)
	return RelayService{
		InstanceName: instance,
		Host:         "relay.local.",
		Addresses:    addrs,
		Info:         *info,
		Text:         txt,
	}
}

func TestAggregatorMergesInterfaces(t *testing.T) {
	agg := newAggregator(DefaultGroup)

	ev := agg.add(relayService("TDRS-a", "a", "10.0.0.1"))
	require.NotNil(t, ev)
	assert.Equal(t, EventEnter, ev.Type)

	assert.Nil(t, agg.add(relayService("TDRS-a", "a", "192.168.1.5")))
	assert.Nil(t, agg.remove(relayService("TDRS-a", "a", "10.0.0.1")))

	ev = agg.remove(relayService("TDRS-a", "a", "192.168.1.5"))
	require.NotNil(t, ev)
	assert.Equal(t, EventExit, ev.Type)
	assert.Equal(t, "a", ev.Service.Info.ID)

	assert.Nil(t, agg.remove(relayService("TDRS-a", "a", "192.168.1.5")))
}

func TestAggregatorFiltersGroupAndID(t *testing.T) {
	agg := newAggregator("OTHER")
	assert.Nil(t, agg.add(relayService("TDRS-a", "a", "10.0.0.1")))

	agg = newAggregator(DefaultGroup)
	svc := relayService("TDRS-b", "b", "10.0.0.1")
	svc.Info.ID = ""
	assert.Nil(t, agg.add(svc))
}

func TestAggregatorGoodbyeWithoutAddresses(t *testing.T) {
	agg := newAggregator(DefaultGroup)
	require.NotNil(t, agg.add(relayService("TDRS-a", "a", "10.0.0.1", "10.0.0.2")))

	ev := agg.remove(RelayService{InstanceName: "TDRS-a"})
	require.NotNil(t, ev)
	assert.Equal(t, EventExit, ev.Type)
}

func TestPeerLine(t *testing.T) {
	ev := Event{Type: EventEnter, Service: relayService("TDRS-a", "relay-a", "fe80::1", "192.168.1.5")}
	line := PeerLine(ev)
	assert.Equal(t, "PEER:ENTER:relay-a:tcp:192.168.1.5:5555:tcp:192.168.1.5:5556", line)

	msg := control.ParsePeer(line)
	require.NotNil(t, msg)
	assert.Equal(t, "tcp://192.168.1.5:5555", msg.PublisherAddress())
	assert.Equal(t, "tcp://192.168.1.5:5556", msg.ReceiverAddress())
}

func TestPeerLineMissingHeaders(t *testing.T) {
	svc := RelayService{
		InstanceName: "TDRS-x",
		Host:         "x.local.",
		Info:         RelayInfo{ID: "x"},
		Text:         TXTRecordMap{TXTKeyID: "x", TXTKeyReceiverPort: "bogus"},
	}
	line := PeerLine(Event{Type: EventExit, Service: svc})
	assert.Equal(t, "PEER:EXIT:x:*:x.local:*:*:x.local:*", line)
	assert.NotNil(t, control.ParsePeer(line))
}

func TestMDNSBrowserRejectsConcurrentBrowse(t *testing.T) {
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.running = true
	_, err := b.Browse(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestMDNSAdvertiserUpdateWithoutAdvertise(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, a.Update(&RelayInfo{ID: "x"}), ErrNotAdvertising)
	assert.NoError(t, a.Stop())
}

func TestMDNSAdvertiserRequiresPort(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	err := a.Advertise(context.Background(), &RelayInfo{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidPort)
}
