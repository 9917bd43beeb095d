package refresh

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MaxSessionAge is the provider's hard limit on an access token's age.
	MaxSessionAge = 3600 * time.Second
	// RefreshBuffer brings the refresh forward so a token never ages out mid burst.
	RefreshBuffer = 300 * time.Second
	ClockSkew     = 60 * time.Second
)

type Outcome int

const (
	Valid Outcome = iota
	NeedsRefresh
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case NeedsRefresh:
		return "needs-refresh"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Assessment is the verdict on a session's access token.
type Assessment struct {
	Outcome Outcome
	Reason  string
	// Age is zero when the token carries no iat.
	Age time.Duration
}

// Assess decodes token without trusting it and decides whether it is still
// usable at now. It makes no network calls.
func Assess(token string, now time.Time) Assessment {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Assessment{Outcome: NeedsRefresh, Reason: "undecodable token: " + err.Error()}
	}

	validator := jwt.NewValidator(
		jwt.WithLeeway(ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err := validator.Validate(claims); err != nil {
		return Assessment{Outcome: NeedsRefresh, Reason: "time claims rejected: " + err.Error()}
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return Assessment{Outcome: NeedsRefresh, Reason: "unreadable iat: " + err.Error()}
	}
	if iat == nil {
		return Assessment{Outcome: Valid, Reason: "no iat"}
	}

	age := now.Sub(iat.Time)
	if age > MaxSessionAge-RefreshBuffer {
		return Assessment{Outcome: NeedsRefresh, Reason: fmt.Sprintf("token age %s inside refresh buffer", age.Truncate(time.Second)), Age: age}
	}
	return Assessment{Outcome: Valid, Age: age}
}
