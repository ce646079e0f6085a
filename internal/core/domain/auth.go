package domain

// AuthHeader is a bearer credential for a counterpart node api
type AuthHeader struct {
	Name      string
	Value     string
	ExpiresIn int
}
