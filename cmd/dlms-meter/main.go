// dlms-meter runs and exercises a DLMS/COSEM association server.
//
// Usage:
//
//	dlms-meter serve --config meter.yaml
//	dlms-meter probe --addr 127.0.0.1:4059 --mechanism low --password 12345678
//	dlms-meter trace trace.cbor --direction in
//	dlms-meter discover --timeout 5s
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dlms-meter",
	Short: "DLMS/COSEM association server",
	Long: `dlms-meter serves DLMS/COSEM association control over the TCP and UDP
wrapper profiles and provides client tooling to probe servers, read APDU
traces and discover meters on the local network.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, probeCmd, traceCmd, discoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
