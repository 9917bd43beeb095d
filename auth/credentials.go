package auth

// Profile is what the provider strategy learns about the user.
type Profile struct {
	ID          string
	Name        string
	Email       string
	DisplayName string
}

// Credentials are the outcome of a successful provider round trip.
type Credentials struct {
	Profile      Profile
	Token        string
	RefreshToken string
}
