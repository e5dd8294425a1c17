package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/z3950gw/gateway/internal/diag"
)

// authenticator performs the optional HTTP side-channel check described in
// spec.md section 4.1/6: substitute {user}/{pass} (URL-encoded) into the
// configured template and GET it; 2xx accepts, anything else rejects.
type authenticator interface {
	Check(ctx context.Context, template, user, password string) error
}

type httpAuthenticator struct {
	client *http.Client
}

func (a httpAuthenticator) Check(ctx context.Context, template, user, password string) error {
	client := a.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	target := strings.NewReplacer(
		"{user}", url.QueryEscape(user),
		"{pass}", url.QueryEscape(password),
	).Replace(template)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errAuthRejected
	}
	return nil
}

var errAuthRejected = diag.New(diag.Code1014CredentialsBad, "credentials are bad")
