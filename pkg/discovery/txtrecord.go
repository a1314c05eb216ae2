package discovery

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// EncodeRelayTXT creates the TXT record for a relay advertisement.
func EncodeRelayTXT(info *RelayInfo) (TXTRecordMap, error) {
	if info.ID == "" {
		return nil, ErrMissingID
	}
	if !idPattern.MatchString(info.ID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, info.ID)
	}

	txt := TXTRecordMap{
		TXTKeyID:    info.ID,
		TXTKeyGroup: groupOrDefault(info.Group),
	}
	if info.PublisherProtocol != "" {
		txt[TXTKeyPublisherProtocol] = info.PublisherProtocol
	}
	if info.PublisherPort != 0 {
		txt[TXTKeyPublisherPort] = strconv.FormatUint(uint64(info.PublisherPort), 10)
	}
	if info.ReceiverProtocol != "" {
		txt[TXTKeyReceiverProtocol] = info.ReceiverProtocol
	}
	if info.ReceiverPort != 0 {
		txt[TXTKeyReceiverPort] = strconv.FormatUint(uint64(info.ReceiverPort), 10)
	}
	return txt, nil
}

// DecodeRelayTXT parses a relay TXT record. Only the id is required.
func DecodeRelayTXT(txt TXTRecordMap) (*RelayInfo, error) {
	id, ok := txt[TXTKeyID]
	if !ok || id == "" {
		return nil, ErrMissingID
	}
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	info := &RelayInfo{
		ID:                id,
		Group:             groupOrDefault(txt[TXTKeyGroup]),
		PublisherProtocol: txt[TXTKeyPublisherProtocol],
		ReceiverProtocol:  txt[TXTKeyReceiverProtocol],
	}

	var err error
	if info.PublisherPort, err = parsePort(txt, TXTKeyPublisherPort); err != nil {
		return nil, err
	}
	if info.ReceiverPort, err = parsePort(txt, TXTKeyReceiverPort); err != nil {
		return nil, err
	}
	return info, nil
}

func parsePort(txt TXTRecordMap, key string) (uint16, error) {
	s, ok := txt[key]
	if !ok || s == "" {
		return 0, nil
	}
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPort, key, s)
	}
	return uint16(p), nil
}

func groupOrDefault(g string) string {
	if g == "" {
		return DefaultGroup
	}
	return g
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// InstanceName builds the DNS-SD instance name of a relay.
func InstanceName(info *RelayInfo) string {
	name := "TDRS-" + info.ID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
