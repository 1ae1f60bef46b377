package discovery

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testTitle = []byte("SRVTITLE")

func TestMeterTXT_Encode(t *testing.T) {
	txt := MeterTXT{
		SystemTitle:    testTitle,
		LogicalDevices: []uint16{16, 1},
		Suit:           3,
		Manufacturer:   "ABC",
		MaxPDU:         512,
	}

	want := []string{
		"ST=5352565449544C45",
		"LD=1,16",
		"SU=3",
		"MF=ABC",
		"PDU=512",
	}
	if diff := cmp.Diff(want, txt.Encode()); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}

	if txt.LogicalDevices[0] != 16 {
		t.Error("Encode() reordered the caller's logical devices")
	}
}

func TestMeterTXT_EncodeMinimal(t *testing.T) {
	txt := MeterTXT{SystemTitle: testTitle, LogicalDevices: []uint16{1}}
	want := []string{"ST=5352565449544C45", "LD=1", "SU=0"}
	if diff := cmp.Diff(want, txt.Encode()); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
}

func TestMeterTXT_Validate(t *testing.T) {
	tests := []struct {
		name string
		txt  MeterTXT
		want error
	}{
		{"valid", MeterTXT{SystemTitle: testTitle, LogicalDevices: []uint16{1}}, nil},
		{"short title", MeterTXT{SystemTitle: []byte("ABC"), LogicalDevices: []uint16{1}}, ErrInvalidSystemTitle},
		{"no logical devices", MeterTXT{SystemTitle: testTitle}, ErrNoLogicalDevices},
		{"lower-case manufacturer", MeterTXT{SystemTitle: testTitle, LogicalDevices: []uint16{1}, Manufacturer: "abc"}, ErrInvalidManufacturer},
		{"long manufacturer", MeterTXT{SystemTitle: testTitle, LogicalDevices: []uint16{1}, Manufacturer: "ABCD"}, ErrInvalidManufacturer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.txt.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseMeterTXT(t *testing.T) {
	want := &MeterTXT{
		SystemTitle:    testTitle,
		LogicalDevices: []uint16{1, 16},
		Suit:           1,
		Manufacturer:   "XYZ",
		MaxPDU:         1024,
	}

	got, err := ParseMeterTXT(want.Encode())
	if err != nil {
		t.Fatalf("ParseMeterTXT() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseMeterTXT() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMeterTXT_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []string
		want    error
	}{
		{"bad title hex", []string{"ST=ZZ", "LD=1"}, ErrInvalidTXTRecord},
		{"missing title", []string{"LD=1"}, ErrInvalidSystemTitle},
		{"bad logical device", []string{"ST=5352565449544C45", "LD=1,x"}, ErrInvalidTXTRecord},
		{"logical device overflow", []string{"ST=5352565449544C45", "LD=70000"}, ErrInvalidTXTRecord},
		{"bad suit", []string{"ST=5352565449544C45", "LD=1", "SU=300"}, ErrInvalidTXTRecord},
		{"bad pdu", []string{"ST=5352565449544C45", "LD=1", "PDU=-1"}, ErrInvalidTXTRecord},
		{"no logical devices", []string{"ST=5352565449544C45"}, ErrNoLogicalDevices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMeterTXT(tt.records); !errors.Is(err, tt.want) {
				t.Errorf("ParseMeterTXT() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := ParseTXT([]string{"A=1", "B=", "=x", "noequals", "C=a=b"})
	want := map[string]string{"A": "1", "B": "", "C": "a=b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseTXT() mismatch (-want +got):\n%s", diff)
	}
}
