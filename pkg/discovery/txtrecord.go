package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for a device.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyDeviceID:   info.DeviceID,
		TXTKeyDeviceType: info.DeviceType,
		TXTKeyProtocol:   ProtocolVersion,
	}
	if info.DeviceName != "" {
		txt[TXTKeyDeviceName] = info.DeviceName
	}
	return txt
}

// DecodeTXT parses TXT records of a device.
func DecodeTXT(txt TXTRecordMap) (*Service, error) {
	svc := &Service{}

	var ok bool
	if svc.DeviceID, ok = txt[TXTKeyDeviceID]; !ok || svc.DeviceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDeviceID)
	}
	if svc.DeviceType, ok = txt[TXTKeyDeviceType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDeviceType)
	}
	if svc.Protocol, ok = txt[TXTKeyProtocol]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocol)
	}
	if svc.Protocol != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version %q", ErrInvalidTXTRecord, svc.Protocol)
	}
	svc.DeviceName = txt[TXTKeyDeviceName]
	return svc, nil
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
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}
