package domain

// SDKVersion is sent to the widget as the "v" parameter.
const SDKVersion = "idpauth-go/0.3.0"

// DefaultAppName is the name of the default auth instance.
const DefaultAppName = "[DEFAULT]"

// AuthEventType is the kind of operation a popup or redirect was started for.
type AuthEventType string

const (
	SignInViaPopup       AuthEventType = "signInViaPopup"
	SignInViaRedirect    AuthEventType = "signInViaRedirect"
	LinkViaPopup         AuthEventType = "linkViaPopup"
	LinkViaRedirect      AuthEventType = "linkViaRedirect"
	ReauthViaPopup       AuthEventType = "reauthViaPopup"
	ReauthViaRedirect    AuthEventType = "reauthViaRedirect"
	UnknownAuthEventType AuthEventType = "unknown"
	VerifyAppViaPopup    AuthEventType = "verifyApp"
	VerifyAppViaRedirect AuthEventType = "verifyAppViaRedirect"
)

// Valid reports whether t is one of the known event types.
func (t AuthEventType) Valid() bool {
	switch t {
	case SignInViaPopup, SignInViaRedirect, LinkViaPopup, LinkViaRedirect,
		ReauthViaPopup, ReauthViaRedirect, UnknownAuthEventType,
		VerifyAppViaPopup, VerifyAppViaRedirect:
		return true
	}
	return false
}

// IsRedirect reports whether t belongs to the redirect family.
func (t AuthEventType) IsRedirect() bool {
	switch t {
	case SignInViaRedirect, LinkViaRedirect, ReauthViaRedirect, VerifyAppViaRedirect:
		return true
	}
	return false
}

// Outcome is the result class of an inbound auth event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// EventData is the payload of a successful auth event: everything the
// backend needs to finish the token exchange.
type EventData struct {
	URLResponse  string `json:"urlResponse"`
	SessionID    string `json:"sessionId,omitempty"`
	PostBody     string `json:"postBody,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
	PendingToken string `json:"pendingToken,omitempty"`
}

// AuthEvent is one inbound result delivered through the channel.
type AuthEvent struct {
	EventID string        `json:"eventId"`
	Type    AuthEventType `json:"type"`
	Outcome Outcome       `json:"outcome"`
	Data    *EventData    `json:"data,omitempty"`
	Error   *EventError   `json:"error,omitempty"`
}

// AuthEventMessageType is the channel message name carrying auth events.
const AuthEventMessageType = "authEvent"

// Message is the envelope posted into the channel.
type Message struct {
	EventType string     `json:"eventType"`
	AuthEvent *AuthEvent `json:"authEvent,omitempty"`
}

// AckStatus is the only status the channel replies with.
const AckStatus = "ACK"

// Ack is the fixed-shape acknowledgement returned for every inbound message.
type Ack struct {
	Status string `json:"status"`
}

// NewAck returns the acknowledgement reply.
func NewAck() Ack {
	return Ack{Status: AckStatus}
}

// SignInWithIdpRequest is the body of the backend token exchange.
type SignInWithIdpRequest struct {
	RequestURI        string  `json:"requestUri"`
	SessionID         string  `json:"sessionId,omitempty"`
	PostBody          *string `json:"postBody"`
	TenantID          string  `json:"tenantId,omitempty"`
	PendingToken      string  `json:"pendingToken,omitempty"`
	IDToken           string  `json:"idToken,omitempty"`
	ReturnSecureToken bool    `json:"returnSecureToken"`
}

// MFAInfo describes one enrolled second factor.
type MFAInfo struct {
	MFAEnrollmentID string `json:"mfaEnrollmentId"`
	DisplayName     string `json:"displayName,omitempty"`
	PhoneInfo       string `json:"phoneInfo,omitempty"`
	EnrolledAt      string `json:"enrolledAt,omitempty"`
}

// IDTokenResponse is the normalized token response of the backend.
type IDTokenResponse struct {
	IDToken      string `json:"idToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    string `json:"expiresIn,omitempty"`
	LocalID      string `json:"localId,omitempty"`
	Email        string `json:"email,omitempty"`
	ProviderID   string `json:"providerId,omitempty"`
	FederatedID  string `json:"federatedId,omitempty"`
	IsNewUser    bool   `json:"isNewUser,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
	PendingToken string `json:"pendingToken,omitempty"`
	RawUserInfo  string `json:"rawUserInfo,omitempty"`

	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
	OAuthIDToken     string `json:"oauthIdToken,omitempty"`
	OAuthExpireIn    int64  `json:"oauthExpireIn,omitempty"`
	OAuthTokenSecret string `json:"oauthTokenSecret,omitempty"`

	MFAPendingCredential string    `json:"mfaPendingCredential,omitempty"`
	MFAInfo              []MFAInfo `json:"mfaInfo,omitempty"`
}
