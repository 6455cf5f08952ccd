package login

import "github.com/fightinglucida/FastMP/pkg/wechat"

// State is the position of one QR handshake.
type State string

const (
	// StateIssued means the QR has been issued and not yet scanned.
	StateIssued State = "ISSUED"
	// StateScanned means the QR was scanned and awaits on-device confirmation.
	StateScanned State = "SCANNED"
	// StateConfirmed means the scan was confirmed; the token exchange runs next.
	StateConfirmed State = "CONFIRMED"
	// StateEstablished means the handshake succeeded and a credential exists.
	StateEstablished State = "ESTABLISHED"
	// StateExpired means the session outlived its TTL before completing.
	StateExpired State = "EXPIRED"
	// StateFailed is the terminal failure state.
	StateFailed State = "FAILED"
)

// Terminal reports whether no further polling can change the state.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateExpired || s == StateFailed
}

// stateFromVendorCode maps the provider's scan status code onto the
// machine's states. Unknown codes map to FAILED.
func stateFromVendorCode(code int) State {
	switch code {
	case wechat.StatusNotScanned:
		return StateIssued
	case wechat.StatusScanned:
		return StateScanned
	case wechat.StatusConfirmed:
		return StateConfirmed
	default:
		return StateFailed
	}
}
