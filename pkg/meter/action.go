package meter

import (
	"github.com/backkem/dlms/pkg/axdr"
	"golang.org/x/crypto/cryptobyte"
)

// xDLMS service tags used by the server.
const (
	TagActionRequest     = 0xC3
	TagActionResponse    = 0xC7
	TagExceptionResponse = 0xD8

	actionNormal = 0x01
	tagOctets    = 0x09
)

// ActionResult is the result code of an action-response.
type ActionResult uint8

const (
	ActionSuccess           ActionResult = 0
	ActionReadWriteDenied   ActionResult = 3
	ActionObjectUnavailable ActionResult = 11
	ActionOtherReason       ActionResult = 250
)

// Exception-response state and service errors.
const (
	StateServiceNotAllowed     = 0x01
	ServiceNotSupported        = 0x02
	ServiceOperationImpossible = 0x01
)

// Association LN object and its reply_to_HLS_authentication method.
var associationLN = [6]byte{0, 0, 40, 0, 0, 255}

const (
	classAssociationLN = 15
	methodReplyToHLS   = 1
)

// ActionRequest is a decoded action-request-normal.
type ActionRequest struct {
	InvokeID uint8
	ClassID  uint16
	Instance [6]byte
	Method   uint8

	// Parameter is the octet-string method parameter, nil when absent.
	Parameter []byte
}

// IsReplyToHLS reports whether r invokes reply_to_HLS_authentication on the
// current association.
func (r ActionRequest) IsReplyToHLS() bool {
	return r.ClassID == classAssociationLN && r.Instance == associationLN && r.Method == methodReplyToHLS
}

// ParseActionRequest decodes an action-request-normal whose parameter, if
// present, is an octet-string.
func ParseActionRequest(apdu []byte) (ActionRequest, error) {
	var (
		r                 ActionRequest
		tag, choice, flag uint8
		instance          []byte
	)
	s := cryptobyte.String(apdu)
	if !s.ReadUint8(&tag) || tag != TagActionRequest ||
		!s.ReadUint8(&choice) || choice != actionNormal ||
		!s.ReadUint8(&r.InvokeID) ||
		!s.ReadUint16(&r.ClassID) ||
		!s.ReadBytes(&instance, len(r.Instance)) ||
		!s.ReadUint8(&r.Method) ||
		!s.ReadUint8(&flag) {
		return ActionRequest{}, ErrMalformedAction
	}
	copy(r.Instance[:], instance)

	if flag == 0 {
		if !s.Empty() {
			return ActionRequest{}, ErrMalformedAction
		}
		return r, nil
	}

	var dataTag uint8
	if !s.ReadUint8(&dataTag) || dataTag != tagOctets {
		return ActionRequest{}, ErrMalformedAction
	}
	n, ok := axdr.ReadLength(&s)
	if !ok || !s.ReadBytes(&r.Parameter, n) || !s.Empty() {
		return ActionRequest{}, ErrMalformedAction
	}
	if r.Parameter == nil {
		r.Parameter = []byte{}
	}
	return r, nil
}

// AppendActionRequest appends an action-request-normal. Parameter, when not
// nil, is sent as an octet-string.
func AppendActionRequest(dst []byte, r ActionRequest) []byte {
	dst = append(dst, TagActionRequest, actionNormal, r.InvokeID, byte(r.ClassID>>8), byte(r.ClassID))
	dst = append(dst, r.Instance[:]...)
	dst = append(dst, r.Method)
	if r.Parameter == nil {
		return append(dst, 0x00)
	}
	dst = append(dst, 0x01, tagOctets)
	dst, _ = axdr.AppendLength(dst, len(r.Parameter))
	return append(dst, r.Parameter...)
}

// ReplyToHLS returns the action-request a client sends with its reply to
// the server challenge.
func ReplyToHLS(invokeID uint8, reply []byte) []byte {
	return AppendActionRequest(nil, ActionRequest{
		InvokeID:  invokeID,
		ClassID:   classAssociationLN,
		Instance:  associationLN,
		Method:    methodReplyToHLS,
		Parameter: reply,
	})
}

// ActionResponse is a decoded action-response-normal.
type ActionResponse struct {
	InvokeID uint8
	Result   ActionResult

	// Data is the octet-string return parameter, nil when absent.
	Data []byte
}

// AppendActionResponse appends an action-response-normal. Data, when not
// nil, is returned as an octet-string.
func AppendActionResponse(dst []byte, r ActionResponse) []byte {
	dst = append(dst, TagActionResponse, actionNormal, r.InvokeID, byte(r.Result))
	if r.Data == nil {
		return append(dst, 0x00)
	}
	dst = append(dst, 0x01, 0x00, tagOctets)
	dst, _ = axdr.AppendLength(dst, len(r.Data))
	return append(dst, r.Data...)
}

// ParseActionResponse decodes an action-response-normal.
func ParseActionResponse(apdu []byte) (ActionResponse, error) {
	var (
		r                         ActionResponse
		tag, choice, result, flag uint8
	)
	s := cryptobyte.String(apdu)
	if !s.ReadUint8(&tag) || tag != TagActionResponse ||
		!s.ReadUint8(&choice) || choice != actionNormal ||
		!s.ReadUint8(&r.InvokeID) ||
		!s.ReadUint8(&result) ||
		!s.ReadUint8(&flag) {
		return ActionResponse{}, ErrMalformedAction
	}
	r.Result = ActionResult(result)
	if flag == 0 {
		return r, nil
	}

	// Get-Data-Result: CHOICE data [0].
	var getChoice, dataTag uint8
	if !s.ReadUint8(&getChoice) || getChoice != 0 ||
		!s.ReadUint8(&dataTag) || dataTag != tagOctets {
		return ActionResponse{}, ErrMalformedAction
	}
	n, ok := axdr.ReadLength(&s)
	if !ok || !s.ReadBytes(&r.Data, n) {
		return ActionResponse{}, ErrMalformedAction
	}
	return r, nil
}

// AppendException appends an exception-response.
func AppendException(dst []byte, stateError, serviceError uint8) []byte {
	return append(dst, TagExceptionResponse, stateError, serviceError)
}
