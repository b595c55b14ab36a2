package web

import (
	"net/http"
)

// clientMeta is who sent a request, for upload logs.
type clientMeta struct {
	IP        string
	UserAgent string
}

// requestMeta reads the client address set by the real-IP middleware.
func requestMeta(r *http.Request) clientMeta {
	return clientMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
