package keys

import (
	"fmt"
	"strings"
)

// Kind identifies one kind of secret held for a logical device.
type Kind uint8

const (
	KindPassword Kind = iota + 1
	KindManagementPassword
	KindAuthentication
	KindEncryption
	KindServerSigning
	KindClientVerification
	KindLocalTitle
)

var kindNames = map[Kind]string{
	KindPassword:           "password",
	KindManagementPassword: "management-password",
	KindAuthentication:     "authentication",
	KindEncryption:         "encryption",
	KindServerSigning:      "server-signing",
	KindClientVerification: "client-verification",
	KindLocalTitle:         "local-title",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsValid reports whether k is a defined kind.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// MaxSize returns the largest value accepted for the kind.
func (k Kind) MaxSize() int {
	switch k {
	case KindPassword, KindManagementPassword, KindAuthentication, KindEncryption:
		return 32
	case KindServerSigning:
		return 48
	case KindClientVerification:
		return 96
	case KindLocalTitle:
		return 8
	default:
		return 0
	}
}

// ParseKind parses a kind name as returned by String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// validate checks value against the size limit of k.
func (k Kind) validate(value []byte) error {
	if !k.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}
	if len(value) > k.MaxSize() {
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrValueTooLong, k, len(value), k.MaxSize())
	}
	return nil
}
