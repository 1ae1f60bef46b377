package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/backkem/dlms/pkg/apdulog"
	"github.com/spf13/cobra"
)

var traceOpts struct {
	connection    string
	direction     string
	logicalDevice int
	dump          bool
}

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Print an APDU trace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := traceFilter(cmd)
		if err != nil {
			return err
		}
		r, err := apdulog.NewFilteredReader(args[0], filter)
		if err != nil {
			return err
		}
		defer r.Close()
		return printTrace(cmd.OutOrStdout(), r)
	},
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceOpts.connection, "conn", "", "only records of this connection ID")
	f.StringVar(&traceOpts.direction, "direction", "", "in or out")
	f.IntVar(&traceOpts.logicalDevice, "ld", -1, "only records of this logical device")
	f.BoolVarP(&traceOpts.dump, "hex", "x", false, "print APDU bytes")
}

func traceFilter(cmd *cobra.Command) (apdulog.Filter, error) {
	filter := apdulog.Filter{ConnectionID: traceOpts.connection}

	switch strings.ToLower(traceOpts.direction) {
	case "":
	case "in":
		d := apdulog.DirectionIn
		filter.Direction = &d
	case "out":
		d := apdulog.DirectionOut
		filter.Direction = &d
	default:
		return filter, fmt.Errorf("invalid direction %q", traceOpts.direction)
	}

	if cmd.Flags().Changed("ld") {
		if traceOpts.logicalDevice < 0 || traceOpts.logicalDevice > 0xFFFF {
			return filter, fmt.Errorf("invalid logical device %d", traceOpts.logicalDevice)
		}
		ld := uint16(traceOpts.logicalDevice)
		filter.LogicalDevice = &ld
	}
	return filter, nil
}

func printTrace(w io.Writer, r *apdulog.Reader) error {
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, rec)
		if traceOpts.dump {
			fmt.Fprint(w, hex.Dump(rec.APDU))
		}
	}
}
