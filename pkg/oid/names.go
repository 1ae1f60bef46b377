package oid

import "fmt"

// DLMS-UA object identifier arcs: 2.16.756.5.8.
const (
	jointISOCCITT = 2
	countryCode   = 16
	countryName   = 756
	organization  = 5
	dlmsUA        = 8

	// ContextApplication is the context arc of application-context names.
	ContextApplication = 1

	// ContextMechanism is the context arc of authentication-mechanism names.
	ContextMechanism = 2
)

// ApplicationContext identifies an application-context-name id.
type ApplicationContext uint8

// Application context ids.
const (
	LogicalNameNoCiphering   ApplicationContext = 1
	ShortNameNoCiphering     ApplicationContext = 2
	LogicalNameWithCiphering ApplicationContext = 3
	ShortNameWithCiphering   ApplicationContext = 4
)

// String returns the name of the application context.
func (c ApplicationContext) String() string {
	switch c {
	case LogicalNameNoCiphering:
		return "LN"
	case ShortNameNoCiphering:
		return "SN"
	case LogicalNameWithCiphering:
		return "LN-ciphered"
	case ShortNameWithCiphering:
		return "SN-ciphered"
	default:
		return fmt.Sprintf("ApplicationContext(%d)", uint8(c))
	}
}

// Ciphered reports whether the context requires ciphered APDUs.
func (c ApplicationContext) Ciphered() bool {
	return c == LogicalNameWithCiphering || c == ShortNameWithCiphering
}

// OID returns the full identifier of the application context.
func (c ApplicationContext) OID() ObjectIdentifier {
	return dlms(ContextApplication, uint8(c))
}

// Bytes returns the compact encoding of the application context.
func (c ApplicationContext) Bytes() [Size]byte {
	return c.OID().MustEncode()
}

// Mechanism identifies an authentication mechanism id.
type Mechanism uint8

// Authentication mechanism ids.
const (
	MechanismLowest     Mechanism = 0
	MechanismLow        Mechanism = 1
	MechanismHigh       Mechanism = 2
	MechanismHighMD5    Mechanism = 3
	MechanismHighSHA1   Mechanism = 4
	MechanismHighGMAC   Mechanism = 5
	MechanismHighSHA256 Mechanism = 6
	MechanismHighECDSA  Mechanism = 7
)

// String returns the name of the mechanism.
func (m Mechanism) String() string {
	switch m {
	case MechanismLowest:
		return "lowest"
	case MechanismLow:
		return "low"
	case MechanismHigh:
		return "high"
	case MechanismHighMD5:
		return "high-md5"
	case MechanismHighSHA1:
		return "high-sha1"
	case MechanismHighGMAC:
		return "high-gmac"
	case MechanismHighSHA256:
		return "high-sha256"
	case MechanismHighECDSA:
		return "high-ecdsa"
	default:
		return fmt.Sprintf("Mechanism(%d)", uint8(m))
	}
}

// IsValid reports whether m is a defined mechanism id.
func (m Mechanism) IsValid() bool {
	return m <= MechanismHighECDSA
}

// IsHigh reports whether m is a high-level (challenge/response) mechanism.
func (m Mechanism) IsHigh() bool {
	return m >= MechanismHigh && m.IsValid()
}

// OID returns the full identifier of the mechanism name.
func (m Mechanism) OID() ObjectIdentifier {
	return dlms(ContextMechanism, uint8(m))
}

// Bytes returns the compact encoding of the mechanism name.
func (m Mechanism) Bytes() [Size]byte {
	return m.OID().MustEncode()
}

// IsDLMS reports whether o lives under the DLMS-UA arc with the given context.
func (o ObjectIdentifier) IsDLMS(context uint8) bool {
	return o.JointISOCCITT == jointISOCCITT &&
		o.Country == countryCode &&
		o.Name == countryName &&
		o.Organization == organization &&
		o.UA == dlmsUA &&
		o.Context == context
}

func dlms(context, id uint8) ObjectIdentifier {
	return ObjectIdentifier{
		JointISOCCITT: jointISOCCITT,
		Country:       countryCode,
		Name:          countryName,
		Organization:  organization,
		UA:            dlmsUA,
		Context:       context,
		ID:            id,
	}
}
