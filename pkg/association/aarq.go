package association

import (
	"crypto/subtle"
	"errors"

	"github.com/backkem/dlms/pkg/acse"
	"github.com/backkem/dlms/pkg/crypto"
	"github.com/backkem/dlms/pkg/oid"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/security"
	"github.com/backkem/dlms/pkg/xdlms"
)

var errNoUserInformation = errors.New("association: no initiate-request in user-information")

// request is an AARQ prepared for the tier checks.
type request struct {
	aarq        acse.AARQ
	context     oid.ObjectIdentifier
	hasContext  bool
	ciphered    bool
	negotiation xdlms.Negotiation
}

// associate runs the AARQ path on a fresh context and writes the AARE to out.
func (d *Dispatcher) associate(c *Context, apdu, out []byte) int {
	r := d.prepare(c, apdu)

	tier := r.aarq.MechanismID()
	var v Verdict
	switch tier {
	case oid.MechanismLowest:
		v = d.tierNone(c, &r)
	case oid.MechanismLow:
		v = d.tierLow(c, &r)
	default:
		v = d.tierHigh(c, &r)
	}

	c.status = v.status()
	c.level = v.Level
	c.diagnostic = v.Diagnostic

	if d.log != nil {
		d.log.Debugf("AARQ ld=0x%04X session=%d mechanism=%s: %s", c.session.LogicalDevice, c.session.ID, tier, v)
	}
	return d.respond(c, &r, tier, v, out)
}

// prepare decodes the AARQ and records what it proposes on the context:
// application context, calling title, initiate-request and mechanism.
func (d *Dispatcher) prepare(c *Context, apdu []byte) request {
	aarq, err := acse.DecodeAARQ(apdu)
	if err != nil && d.log != nil {
		d.log.Debugf("malformed AARQ ld=0x%04X session=%d: %v", c.session.LogicalDevice, c.session.ID, err)
	}

	r := request{aarq: aarq}
	if o, ok := aarq.ApplicationContextOID(); ok {
		r.context, r.hasContext = o, true
		c.applicationContext = o
	}
	if t, ok := aarq.CallingTitle(); ok {
		c.callingTitle = cloneLimited(t, MaxTitleSize)
	}
	r.negotiation = d.negotiate(c, &r)
	if o, ok := aarq.MechanismOID(); ok {
		c.mechanism = o
	}
	return r
}

// negotiate deciphers the initiate-request if needed and negotiates it
// against the bound capability. Failures yield a zero negotiation.
func (d *Dispatcher) negotiate(c *Context, r *request) xdlms.Negotiation {
	initiate, ok := r.aarq.InitiateRequest()
	if !ok {
		return xdlms.Negotiation{Err: errNoUserInformation}
	}

	if security.IsCiphered(initiate) {
		r.ciphered = true
		env, err := security.ParseRequest(initiate)
		if err == nil {
			c.info.SecurityControl = env.Control
			initiate, err = env.Open(c.securityKeys(), c.callingTitle)
		}
		if err != nil {
			if d.log != nil {
				d.log.Warnf("initiate-request ld=0x%04X session=%d not deciphered: %v", c.session.LogicalDevice, c.session.ID, err)
			}
			return xdlms.Negotiation{Err: err}
		}
	}

	n := xdlms.Negotiate(initiate, c.capability.Conformance, d.cfg.MaxPDU)
	if n.Err != nil {
		return n
	}
	c.info.ResponseAllowed = n.Request.ResponseAllowed
	c.info.ProposedQuality = n.Request.ProposedQuality
	c.info.HasQuality = n.Request.HasQuality
	c.info.Version = n.Request.ProposedVersion
	c.info.Conformance = n.Conformance
	c.info.MaxPDU = n.MaxPDU
	c.dedicatedKey = cloneLimited(n.Request.DedicatedKey, MaxSymmetricKeySize)
	return n
}

// tierNone checks a request without authentication (mechanism 0).
func (d *Dispatcher) tierNone(c *Context, r *request) Verdict {
	if !r.aarq.ProtocolVersionValid() {
		return rejectedByProvider()
	}
	if diag, ok := checkContext(r, oid.LogicalNameNoCiphering); !ok {
		return Rejected(diag)
	}
	if r.ciphered {
		return Rejected(acse.DiagnosticContextName)
	}
	if diag, ok := checkInitiate(r.negotiation, false); !ok {
		return Rejected(diag)
	}
	return Accepted(AccessLowest)
}

// tierLow checks a password authenticated request (mechanism 1).
func (d *Dispatcher) tierLow(c *Context, r *request) Verdict {
	if !r.aarq.ProtocolVersionValid() {
		return rejectedByProvider()
	}
	if mech, ok := r.aarq.MechanismOID(); !ok || !mech.IsDLMS(oid.ContextMechanism) {
		return Rejected(acse.DiagnosticContextName)
	}
	if !r.aarq.AuthenticationRequired() {
		return Rejected(acse.DiagnosticContextName)
	}
	if diag, ok := checkContext(r, oid.LogicalNameNoCiphering, oid.LogicalNameWithCiphering); !ok {
		return Rejected(diag)
	}
	if !d.checkPassword(c, r) {
		return Rejected(acse.DiagnosticContextName)
	}
	if diag, ok := checkInitiate(r.negotiation, false); !ok {
		return Rejected(diag)
	}
	return Accepted(AccessLow)
}

// tierHigh checks a challenge/response request (mechanisms 2 to 7). A
// structurally valid request leaves the association pending until the
// client's reply to StoC is accepted.
func (d *Dispatcher) tierHigh(c *Context, r *request) Verdict {
	if !r.aarq.ProtocolVersionValid() {
		return rejectedByProvider()
	}
	mech, ok := r.aarq.MechanismOID()
	if !ok || !mech.IsDLMS(oid.ContextMechanism) || !oid.Mechanism(mech.ID).IsHigh() {
		return Rejected(acse.DiagnosticContextName)
	}
	if !r.aarq.AuthenticationRequired() {
		return Rejected(acse.DiagnosticContextName)
	}
	challenge, ok := r.aarq.AuthValue()
	if !ok || len(challenge) == 0 || len(r.aarq.CallingAuthValue) > acse.MaxChallengeElement {
		return Rejected(acse.DiagnosticContextName)
	}
	c.ctos = cloneLimited(challenge, MaxChallengeSize)

	if diag, ok := checkContext(r, oid.LogicalNameWithCiphering); !ok {
		return Rejected(diag)
	}
	if diag, ok := checkInitiate(r.negotiation, true); !ok {
		return Rejected(diag)
	}

	stoc, err := crypto.RandomChallenge(d.cfg.Random, ChallengeSize)
	if err != nil {
		if d.log != nil {
			d.log.Warnf("StoC generation failed: %v", err)
		}
		return Rejected(acse.DiagnosticNoReason)
	}
	c.stoc = stoc
	return Pending()
}

// checkPassword compares the calling authentication value with the
// password of the logical device (the management password for the
// management logical device).
func (d *Dispatcher) checkPassword(c *Context, r *request) bool {
	if d.cfg.Keys == nil || len(r.aarq.CallingAuthValue) > acse.MaxPasswordElement {
		return false
	}
	value, ok := r.aarq.AuthValue()
	if !ok {
		return false
	}

	get := d.cfg.Keys.Password
	if c.session.LogicalDevice == registry.ManagementLogicalDevice {
		get = d.cfg.Keys.ManagementPassword
	}
	password, err := get(c.session.ref())
	if err != nil || len(password) == 0 {
		return false
	}
	defer zero(password)

	return len(password) == len(value) && subtle.ConstantTimeCompare(password, value) == 1
}

// checkContext validates the proposed application context against the ids
// a tier allows.
func checkContext(r *request, allowed ...oid.ApplicationContext) (acse.Diagnostic, bool) {
	if !r.hasContext {
		return acse.DiagnosticContextName, false
	}
	if !r.context.IsDLMS(oid.ContextApplication) {
		return acse.DiagnosticNoReason, false
	}
	for _, a := range allowed {
		if r.context.ID == uint8(a) {
			return acse.DiagnosticSuccess, true
		}
	}
	return acse.DiagnosticContextName, false
}

// checkInitiate validates the negotiated initiate-request.
func checkInitiate(n xdlms.Negotiation, allowDedicatedKey bool) (acse.Diagnostic, bool) {
	switch {
	case n.Request.DedicatedKey != nil && !allowDedicatedKey:
		return acse.DiagnosticContextName, false
	case n.Request.ProposedVersion < xdlms.DLMSVersion:
		return acse.DiagnosticContextName, false
	case n.MaxPDU < xdlms.MinMaxPDU:
		return acse.DiagnosticContextName, false
	case n.Conformance == 0:
		return acse.DiagnosticNoReason, false
	}
	return acse.DiagnosticSuccess, true
}

// respond builds the AARE for verdict v into out.
func (d *Dispatcher) respond(c *Context, r *request, tier oid.Mechanism, v Verdict, out []byte) int {
	resp := acse.Response{
		EchoProtocolVersion: r.aarq.ProtocolVersion != nil && r.aarq.ProtocolVersionValid(),
		ApplicationContext:  echoContext(r),
		Result:              v.Result(),
		Source:              v.Source,
		Diagnostic:          v.Diagnostic,
	}
	if tier != oid.MechanismLowest && r.aarq.CallingAPTitle != nil {
		resp.RespondingTitle = c.paddedLocalTitle()
	}
	if v.Outcome == OutcomePending {
		resp.Mechanism = oid.Mechanism(c.mechanism.ID)
		resp.StoC = c.stoc
	}

	ui := userInformation(r.negotiation, v)
	if tier != oid.MechanismLowest {
		ui = d.wrap(c, ui)
	}
	resp.UserInformation = ui

	n, err := resp.Encode(out)
	if err != nil {
		if d.log != nil {
			d.log.Warnf("AARE ld=0x%04X session=%d not written: %v", c.session.LogicalDevice, c.session.ID, err)
		}
		return 0
	}
	return n
}

// echoContext returns the application context reported in the AARE: the
// requested one when it lies under the DLMS arc, LN without ciphering
// otherwise.
func echoContext(r *request) oid.ObjectIdentifier {
	if r.hasContext && r.context.IsDLMS(oid.ContextApplication) {
		return r.context
	}
	return oid.LogicalNameNoCiphering.OID()
}

// userInformation returns the plain xDLMS payload of the AARE: a
// ConfirmedServiceError for a failed initiate or a rejected association,
// the InitiateResponse otherwise.
func userInformation(n xdlms.Negotiation, v Verdict) []byte {
	if e, reject := n.Rejection(); reject {
		return xdlms.AppendConfirmedServiceError(nil, e)
	}
	if v.Outcome == OutcomeRejected {
		return xdlms.AppendConfirmedServiceError(nil, xdlms.InitiateErrorOther)
	}
	return xdlms.AppendInitiateResponse(nil, n.Response())
}

// wrap ciphers the user-information with the security control the client
// used. A failure falls back to the plain ConfirmedServiceError.
func (d *Dispatcher) wrap(c *Context, ui []byte) []byte {
	sc := c.info.SecurityControl
	if sc == security.ControlNone {
		return ui
	}

	tag := byte(security.TagGloInitiateResponse)
	if sc.General() {
		tag = security.TagGeneralGloCiphering
	}
	fc, err := c.nextFrameCounter()
	if err == nil {
		var sealed []byte
		sealed, err = security.Seal(tag, sc, c.securityKeys(), c.paddedLocalTitle(), fc, ui)
		if err == nil {
			return sealed
		}
	}
	if d.log != nil {
		d.log.Warnf("initiate-response ld=0x%04X session=%d not ciphered: %v", c.session.LogicalDevice, c.session.ID, err)
	}
	return xdlms.AppendConfirmedServiceError(nil, xdlms.InitiateErrorOther)
}
