package discovery

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXT record keys of a meter service.
const (
	// TXTKeySystemTitle is the hex encoded server system title.
	TXTKeySystemTitle = "ST"

	// TXTKeyLogicalDevices lists the logical device addresses (decimal,
	// comma separated).
	TXTKeyLogicalDevices = "LD"

	// TXTKeySuit is the security suit bitmap.
	TXTKeySuit = "SU"

	// TXTKeyManufacturer is the three letter FLAG manufacturer id.
	TXTKeyManufacturer = "MF"

	// TXTKeyMaxPDU is the server max-PDU size.
	TXTKeyMaxPDU = "PDU"
)

// SystemTitleSize is the length of a system title in bytes.
const SystemTitleSize = 8

// MeterTXT is the TXT record of an advertised meter.
type MeterTXT struct {
	// SystemTitle is the server system title. Required.
	SystemTitle []byte

	// LogicalDevices are the logical device addresses served. At least one.
	LogicalDevices []uint16

	// Suit is the security suit bitmap of the meter.
	Suit uint8

	// Manufacturer is the FLAG id (e.g. "ABC"). Optional.
	Manufacturer string

	// MaxPDU is the server max-PDU size (0 = omitted).
	MaxPDU uint16
}

// Validate checks the record fields.
func (m *MeterTXT) Validate() error {
	if len(m.SystemTitle) != SystemTitleSize {
		return ErrInvalidSystemTitle
	}
	if len(m.LogicalDevices) == 0 {
		return ErrNoLogicalDevices
	}
	if m.Manufacturer != "" && !validManufacturer(m.Manufacturer) {
		return ErrInvalidManufacturer
	}
	return nil
}

func validManufacturer(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Encode returns the TXT record strings. Logical devices are sorted.
func (m *MeterTXT) Encode() []string {
	lds := make([]uint16, len(m.LogicalDevices))
	copy(lds, m.LogicalDevices)
	sort.Slice(lds, func(i, j int) bool { return lds[i] < lds[j] })

	parts := make([]string, len(lds))
	for i, ld := range lds {
		parts[i] = strconv.Itoa(int(ld))
	}

	records := []string{
		TXTKeySystemTitle + "=" + strings.ToUpper(hex.EncodeToString(m.SystemTitle)),
		TXTKeyLogicalDevices + "=" + strings.Join(parts, ","),
		TXTKeySuit + "=" + strconv.Itoa(int(m.Suit)),
	}
	if m.Manufacturer != "" {
		records = append(records, TXTKeyManufacturer+"="+m.Manufacturer)
	}
	if m.MaxPDU != 0 {
		records = append(records, TXTKeyMaxPDU+"="+strconv.Itoa(int(m.MaxPDU)))
	}
	return records
}

// ParseTXT parses TXT record strings into a key-value map.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseMeterTXT parses the TXT record of a meter service.
func ParseMeterTXT(records []string) (*MeterTXT, error) {
	kv := ParseTXT(records)
	m := &MeterTXT{}

	title, err := hex.DecodeString(kv[TXTKeySystemTitle])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXTRecord, TXTKeySystemTitle, err)
	}
	m.SystemTitle = title

	if v := kv[TXTKeyLogicalDevices]; v != "" {
		for _, s := range strings.Split(v, ",") {
			ld, err := strconv.ParseUint(s, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXTRecord, TXTKeyLogicalDevices, err)
			}
			m.LogicalDevices = append(m.LogicalDevices, uint16(ld))
		}
	}

	if v, ok := kv[TXTKeySuit]; ok {
		suit, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXTRecord, TXTKeySuit, err)
		}
		m.Suit = uint8(suit)
	}

	m.Manufacturer = kv[TXTKeyManufacturer]

	if v, ok := kv[TXTKeyMaxPDU]; ok {
		pdu, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTXTRecord, TXTKeyMaxPDU, err)
		}
		m.MaxPDU = uint16(pdu)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
