package auth

import (
	"context"
	"net"
	"net/http"
	"net/netip"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

type sessionKey struct{}

// WithSession stores the authenticated session on ctx.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session set by WithSession.
func SessionFrom(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*models.Session)
	return s, ok && s != nil
}

// ClientInfo describes the client behind r for audit and analytics rows.
// IP is left empty unless the peer address is publicly routable, so the
// store falls back to its public-address lookup.
func ClientInfo(r *http.Request) models.ClientInfo {
	return models.ClientInfo{
		IP:        publicAddr(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		PageURL:   r.Referer(),
	}
}

func publicAddr(remote string) string {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return ""
	}
	return addr.String()
}
