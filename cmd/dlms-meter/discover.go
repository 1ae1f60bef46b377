package main

import (
	"context"
	"fmt"
	"time"

	"github.com/backkem/dlms/pkg/discovery"
	"github.com/spf13/cobra"
)

var discoverOpts struct {
	timeout  time.Duration
	datagram bool
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse for meters on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mgr, err := discovery.NewManager(discovery.ManagerConfig{BrowseTimeout: discoverOpts.timeout})
		if err != nil {
			return err
		}
		defer mgr.Close()

		st := discovery.ServiceTypeStream
		if discoverOpts.datagram {
			st = discovery.ServiceTypeDatagram
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), discoverOpts.timeout)
		defer cancel()
		services, err := mgr.Browse(ctx, st)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for svc := range services {
			fmt.Fprintf(w, "%s %s", svc.InstanceName, svc.Address())
			if m, err := svc.Meter(); err == nil {
				fmt.Fprintf(w, " logical-devices=%v suit=0x%02X", m.LogicalDevices, m.Suit)
				if m.Manufacturer != "" {
					fmt.Fprintf(w, " manufacturer=%s", m.Manufacturer)
				}
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverOpts.timeout, "timeout", 5*time.Second, "browse duration")
	discoverCmd.Flags().BoolVar(&discoverOpts.datagram, "udp", false, "browse the UDP service instead of TCP")
}
