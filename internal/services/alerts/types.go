package alerts

// CreateInput contains data for opening an alert by hand.
type CreateInput struct {
	Type       string
	Category   string
	Severity   string
	Title      string
	Message    string
	ProductIDs []string
}

// ResolveInput contains the optional note recorded on resolution.
type ResolveInput struct {
	Note *string
}
