package meter

import (
	"crypto/rand"
	"io"

	"github.com/backkem/dlms/pkg/association"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/security"
	"github.com/pion/logging"
)

// RejectingHandler answers every APDU with an exception-response. It stands
// in for the COSEM object layer, which lives outside this module.
type RejectingHandler struct{}

var _ association.ApplicationHandler = RejectingHandler{}

// HandleAPDU writes a service-not-allowed exception.
func (RejectingHandler) HandleAPDU(_ *association.Handle, _, out []byte) int {
	return put(out, AppendException(nil, StateServiceNotAllowed, ServiceNotSupported))
}

// HLSHandler completes pending high-level associations. It services the
// reply_to_HLS_authentication action of the current association object
// (pass 3 and pass 4) and forwards every other APDU of an established
// association to Next.
type HLSHandler struct {
	keys   keys.Loader
	next   association.ApplicationHandler
	random io.Reader
	log    logging.LeveledLogger
}

var _ association.ApplicationHandler = (*HLSHandler)(nil)

// NewHLSHandler creates an HLS handler. loader supplies the HLS secret of
// mechanisms 3, 4 and 6; next defaults to RejectingHandler and random to
// crypto/rand.
func NewHLSHandler(loader keys.Loader, next association.ApplicationHandler, random io.Reader, loggerFactory logging.LoggerFactory) *HLSHandler {
	if next == nil {
		next = RejectingHandler{}
	}
	if random == nil {
		random = rand.Reader
	}
	h := &HLSHandler{keys: loader, next: next, random: random}
	if loggerFactory != nil {
		h.log = loggerFactory.NewLogger("hls")
	}
	return h
}

// HandleAPDU implements association.ApplicationHandler.
func (h *HLSHandler) HandleAPDU(hd *association.Handle, apdu, out []byte) int {
	if hd.Status() != association.StatusPending {
		return h.next.HandleAPDU(hd, apdu, out)
	}

	req, err := ParseActionRequest(apdu)
	if err != nil || !req.IsReplyToHLS() || req.Parameter == nil {
		// Only the challenge reply is allowed before pass 4.
		return put(out, AppendException(nil, StateServiceNotAllowed, ServiceOperationImpossible))
	}

	reply, err := h.authenticate(hd, req.Parameter)
	if err != nil {
		if h.log != nil {
			sess := hd.Session()
			h.log.Warnf("HLS reply rejected ld=0x%04X session=%d: %v", sess.LogicalDevice, sess.ID, err)
		}
		return put(out, AppendActionResponse(nil, ActionResponse{InvokeID: req.InvokeID, Result: ActionOtherReason}))
	}

	if h.log != nil {
		sess := hd.Session()
		h.log.Debugf("HLS association ld=0x%04X session=%d established", sess.LogicalDevice, sess.ID)
	}
	return put(out, AppendActionResponse(nil, ActionResponse{InvokeID: req.InvokeID, Result: ActionSuccess, Data: reply}))
}

// authenticate verifies the client's f(StoC) and returns the server's
// f(CtoS), promoting the association to associated.
func (h *HLSHandler) authenticate(hd *association.Handle, clientReply []byte) ([]byte, error) {
	hls := hd.HLS()
	if secret := h.secret(hd.Session()); secret != nil {
		hls.Secret = secret
		defer clear(secret)
	}

	if err := hls.Verify(security.PartyClient, clientReply); err != nil {
		return nil, err
	}
	fc, err := hd.NextFrameCounter()
	if err != nil {
		return nil, err
	}
	reply, err := hls.Reply(security.PartyServer, fc, h.random)
	if err != nil {
		return nil, err
	}
	if err := hd.AcceptChallenge(); err != nil {
		return nil, err
	}
	return reply, nil
}

// secret loads the HLS secret, which is the management password on the
// management logical device and the password elsewhere.
func (h *HLSHandler) secret(sess association.Session) []byte {
	if h.keys == nil {
		return nil
	}
	get := h.keys.Password
	if sess.LogicalDevice == registry.ManagementLogicalDevice {
		get = h.keys.ManagementPassword
	}
	v, err := get(keys.Ref{LogicalDevice: sess.LogicalDevice, Session: sess.ID})
	if err != nil || len(v) == 0 {
		return nil
	}
	return v
}

// put copies b into out and returns its length, or 0 if it does not fit.
func put(out, b []byte) int {
	if len(b) > len(out) {
		return 0
	}
	return copy(out, b)
}
