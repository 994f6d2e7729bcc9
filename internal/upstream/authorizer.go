package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// MembershipResponse is the body returned by the team-membership service.
type MembershipResponse struct {
	Allowed bool `json:"allowed"`
}

// HTTPAuthorizer asks the team-membership service whether a user may access
// a room:
//
//	GET {base}/rooms/{roomId}/members/{userId}  ->  {"allowed": true}
//
// A 404 or 403 answer is a plain denial. Any other failure is returned as an
// error so the caller can fail closed and log it.
type HTTPAuthorizer struct {
	base string
}

// NewHTTPAuthorizer returns an authorizer rooted at baseURL.
func NewHTTPAuthorizer(baseURL string) (*HTTPAuthorizer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("membership url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("membership url: unsupported scheme %q", u.Scheme)
	}
	return &HTTPAuthorizer{base: strings.TrimRight(baseURL, "/")}, nil
}

// CanAccess implements coordinator.Authorizer.
func (a *HTTPAuthorizer) CanAccess(ctx context.Context, userID, roomID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/members/%s", a.base, url.PathEscape(roomID), url.PathEscape(userID))

	var resp MembershipResponse
	err := GetJSON(ctx, endpoint, &resp)
	var status *StatusError
	if errors.As(err, &status) && (status.StatusCode == http.StatusNotFound || status.StatusCode == http.StatusForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Allowed, nil
}
