// Package meter runs a DLMS/COSEM server endpoint.
//
// A Server listens on the TCP and UDP wrapper profiles, maps every
// (connection, client wPort) pair to a transport session and feeds the
// received APDUs through an association.Dispatcher. Established traffic
// reaches the configured association.ApplicationHandler; by default an
// HLSHandler completes high-level authentication and rejects everything
// else.
//
// Basic usage:
//
//	server, err := meter.NewServer(meter.ServerConfig{
//		Registry: registry.Default(),
//		Keys:     keys.NewLoader(store, nil),
//	})
//	if err != nil {
//		return err
//	}
//	if err := server.Start(ctx); err != nil {
//		return err
//	}
//	defer server.Stop()
package meter
