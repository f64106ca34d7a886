package server

import (
	"net/http"
	"slices"
)

// CORSOptions lists the origins allowed to call the endpoint. "*" allows any
// origin. An empty list disables CORS handling.
type CORSOptions struct {
	AllowedOrigins []string
}

func (c CORSOptions) enabled() bool { return len(c.AllowedOrigins) > 0 }

func (c CORSOptions) wildcard() bool { return slices.Contains(c.AllowedOrigins, "*") }

func (c CORSOptions) allows(origin string) bool {
	return c.wildcard() || slices.Contains(c.AllowedOrigins, origin)
}

// apply sets the response headers for an allowed Origin. Preflight requests
// also get the allowed methods and echo the requested headers.
func (c CORSOptions) apply(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !c.enabled() || origin == "" || !c.allows(origin) {
		return
	}
	hdr := w.Header()
	if c.wildcard() {
		hdr.Set("Access-Control-Allow-Origin", "*")
	} else {
		hdr.Set("Access-Control-Allow-Origin", origin)
		hdr.Add("Vary", "Origin")
	}
	if r.Method != http.MethodOptions {
		return
	}
	hdr.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		hdr.Set("Access-Control-Allow-Headers", requested)
	}
}
