package session

// CloseReason records why a session stopped being valid. It is persisted in
// the session blob so revoked sessions stay inspectable until their TTL.
type CloseReason uint8

const (
	// ReasonNone marks a session that is still open.
	ReasonNone CloseReason = iota
	// ReasonLogout is a single-session logout by the owner.
	ReasonLogout
	// ReasonLogoutAll is an owner-initiated logout of every session.
	ReasonLogoutAll
	// ReasonPasswordChanged closes sessions after a password reset or change.
	ReasonPasswordChanged
	// ReasonAdminRevoked is an explicit revocation through the session
	// management API.
	ReasonAdminRevoked
	// ReasonRolesChanged closes sessions whose embedded roles went stale.
	ReasonRolesChanged
	// ReasonExpired marks natural TTL expiry.
	ReasonExpired
)

// String returns the wire name of the reason.
func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLogout:
		return "logout"
	case ReasonLogoutAll:
		return "logout_all"
	case ReasonPasswordChanged:
		return "password_changed"
	case ReasonAdminRevoked:
		return "admin_revoked"
	case ReasonRolesChanged:
		return "roles_changed"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is one authenticated device context. Generation snapshots the
// account's revocation counter at creation time; a session whose generation
// trails the current counter is dead regardless of its Active flag.
type Session struct {
	ID        string
	AccountID string

	Active      bool
	CloseReason CloseReason
	RememberMe  bool

	CreatedAt      int64
	LastActivityAt int64
	ClosedAt       int64
	Generation     int64

	IP      string
	Device  string
	Browser string
}
