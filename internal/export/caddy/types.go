package caddy

// Matcher is a caddy matcher set carrying its own @id, so it can be replaced
// in place through the admin API without touching the enclosing route.
type Matcher struct {
	ID       string   `json:"@id"`
	RemoteIP RemoteIP `json:"remote_ip"`
}

type RemoteIP struct {
	Ranges []string `json:"ranges"`
}
