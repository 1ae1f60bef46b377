package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/backkem/dlms/pkg/acse"
	"github.com/backkem/dlms/pkg/oid"
	"github.com/backkem/dlms/pkg/transport"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/spf13/cobra"
)

var probeOpts struct {
	addr          string
	network       string
	client        uint16
	logicalDevice uint16
	mechanism     string
	password      string
	timeout       time.Duration
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Open and release an association with a server",
	Long: `Send an AARQ to a server, print the AARE and release the association
if it was accepted. Only the lowest and low (password) mechanisms are
supported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), probeOpts.timeout)
		defer cancel()
		return probe(ctx, cmd.OutOrStdout())
	},
}

func init() {
	f := probeCmd.Flags()
	f.StringVar(&probeOpts.addr, "addr", "127.0.0.1:4059", "server address")
	f.StringVar(&probeOpts.network, "network", "tcp", "tcp or udp")
	f.Uint16Var(&probeOpts.client, "client", transport.PublicClient, "client wPort")
	f.Uint16Var(&probeOpts.logicalDevice, "ld", 1, "logical device wPort")
	f.StringVar(&probeOpts.mechanism, "mechanism", "lowest", "lowest or low")
	f.StringVar(&probeOpts.password, "password", "", "password for the low mechanism")
	f.DurationVar(&probeOpts.timeout, "timeout", 5*time.Second, "overall timeout")
}

func probeRequest() (acse.Request, error) {
	initiate, err := xdlms.AppendInitiateRequest(nil, xdlms.InitiateRequest{
		ResponseAllowed:     true,
		ProposedVersion:     xdlms.DLMSVersion,
		ProposedConformance: xdlms.Conformance(0x00FFFF),
		ClientMaxPDU:        xdlms.DefaultMaxPDU,
	})
	if err != nil {
		return acse.Request{}, err
	}

	r := acse.Request{
		ApplicationContext: oid.LogicalNameNoCiphering,
		UserInformation:    initiate,
	}
	switch probeOpts.mechanism {
	case "lowest":
	case "low":
		r.Mechanism = oid.MechanismLow
		r.AuthValue = []byte(probeOpts.password)
	default:
		return acse.Request{}, fmt.Errorf("unsupported mechanism %q", probeOpts.mechanism)
	}
	return r, nil
}

func probe(ctx context.Context, w io.Writer) error {
	req, err := probeRequest()
	if err != nil {
		return err
	}
	aarq, err := req.Marshal()
	if err != nil {
		return err
	}

	c, err := transport.Dial(ctx, probeOpts.network, probeOpts.addr, probeOpts.client, probeOpts.logicalDevice)
	if err != nil {
		return err
	}
	defer c.Close()

	b, err := c.Exchange(ctx, aarq)
	if err != nil {
		return fmt.Errorf("AARQ: %w", err)
	}
	resp, err := acse.ParseResponse(b)
	if err != nil {
		return fmt.Errorf("AARE: %w", err)
	}

	fmt.Fprintf(w, "result:      %s\n", resp.Result)
	fmt.Fprintf(w, "diagnostic:  %s\n", resp.Diagnostic)
	fmt.Fprintf(w, "context:     %s\n", resp.ApplicationContext)
	if len(resp.RespondingTitle) > 0 {
		fmt.Fprintf(w, "title:       %X\n", resp.RespondingTitle)
	}
	if ir, err := xdlms.ParseInitiateResponse(resp.UserInformation); err == nil {
		fmt.Fprintf(w, "conformance: %06X\n", uint32(ir.Conformance))
		fmt.Fprintf(w, "max PDU:     %d\n", ir.ServerMaxPDU)
	}

	if resp.Result != acse.ResultAccepted {
		return nil
	}
	if b, err = c.Exchange(ctx, acse.RLRQ()); err != nil {
		return fmt.Errorf("RLRQ: %w", err)
	}
	fmt.Fprintf(w, "released:    %s\n", acse.Classify(b))
	return nil
}
