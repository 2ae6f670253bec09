// Package discovery lets clients find SCP devices.
//
// # Discover hello
//
// The unauthenticated /secure-control/discover-hello route answers the
// literal payload "discover-hello" with the device description: identity,
// type, name, control and measure catalogs and the current password version.
// A client compares the version with the one it holds to detect a stale
// password before attempting an authenticated exchange. The response is not
// encrypted or sealed.
//
// # mDNS (_scp._tcp)
//
// Devices in Control mode advertise an _scp._tcp service on the operator
// network. Instance name is the access point style name
// "<deviceType>-<deviceId>". TXT records include:
//   - id: device ID
//   - type: device type
//   - pv: protocol version
//   - name: device name (optional)
//
// Browsing aggregates addresses across interfaces into one Service per
// instance, like DNS-SD resolvers do.
package discovery
