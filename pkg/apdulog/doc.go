// Package apdulog records the APDUs exchanged by a meter server as a
// stream of CBOR encoded records, and reads such streams back for offline
// inspection.
//
// Each record carries the connection UUID assigned when the transport
// session was first seen, the direction, the wrapper addresses and the raw
// APDU. Records use integer map keys to keep trace files compact.
package apdulog
