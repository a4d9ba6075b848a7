package auth

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/undercover/server/apperr"
)

const (
	openIDNamespace = "http://specs.openid.net/auth/2.0"
	identifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"
)

// OpenIDConfig mirrors auth.* in the configuration.
type OpenIDConfig struct {
	ProviderBaseURL string // "https://fishpi.cn"
	ReturnURL       string // our own callback, must be HTTPS
	Realm           string // must be HTTPS and a prefix of ReturnURL
}

// OpenIDClient is the relying-party half of the fishpi.cn OpenID 2.0 login
// flow: build the redirect URL, then verify the provider's callback via
// direct (non-indirect) check_authentication.
type OpenIDClient struct {
	cfg    OpenIDConfig
	client *http.Client
}

func NewOpenIDClient(cfg OpenIDConfig) *OpenIDClient {
	return &OpenIDClient{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// LoginURL builds the URL the browser should be redirected to in order to
// begin the OpenID 2.0 checkid_setup flow. callbackURL, if non-empty, is
// carried through as a query parameter on our own return_to so the provider
// hands it straight back to handleCallback on completion.
func (c *OpenIDClient) LoginURL(callbackURL string) (string, error) {
	if !strings.HasPrefix(c.cfg.ReturnURL, "https://") {
		return "", apperr.WithMessage(apperr.AuthError, "return_to must be https")
	}
	if !strings.HasPrefix(c.cfg.Realm, "https://") {
		return "", apperr.WithMessage(apperr.AuthError, "realm must be https")
	}
	if !strings.HasPrefix(c.cfg.ReturnURL, c.cfg.Realm) {
		return "", apperr.WithMessage(apperr.AuthError, "realm must be a prefix of return_to")
	}

	returnTo := c.cfg.ReturnURL
	if callbackURL != "" {
		ru, err := url.Parse(returnTo)
		if err != nil {
			return "", apperr.WithMessage(apperr.AuthError, "invalid return_to url")
		}
		rq := ru.Query()
		rq.Set("callback_url", callbackURL)
		ru.RawQuery = rq.Encode()
		returnTo = ru.String()
	}

	u, err := url.Parse(c.cfg.ProviderBaseURL + "/openid/login")
	if err != nil {
		return "", apperr.WithMessage(apperr.AuthError, "invalid provider base url")
	}

	q := u.Query()
	q.Set("openid.ns", openIDNamespace)
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", returnTo)
	q.Set("openid.realm", c.cfg.Realm)
	q.Set("openid.claimed_id", identifierSelect)
	q.Set("openid.identity", identifierSelect)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// VerifyCallback validates the provider's redirect parameters and returns
// the claimed user id. Signature verification is done via a direct
// check_authentication request back to the provider, never by trusting the
// browser-supplied parameters alone.
func (c *OpenIDClient) VerifyCallback(params url.Values) (string, error) {
	if params.Get("openid.mode") != "id_res" {
		return "", apperr.WithMessage(apperr.AuthError, "unexpected openid.mode")
	}

	nonce := params.Get("openid.response_nonce")
	if nonce == "" {
		return "", apperr.WithMessage(apperr.AuthError, "missing openid.response_nonce")
	}
	if !nonceIsFresh(nonce, 5*time.Minute) {
		return "", apperr.WithMessage(apperr.AuthError, "response_nonce expired")
	}

	if err := c.checkAuthentication(params); err != nil {
		return "", err
	}

	claimedID := params.Get("openid.claimed_id")
	if claimedID == "" {
		return "", apperr.WithMessage(apperr.AuthError, "missing openid.claimed_id")
	}
	parts := strings.Split(claimedID, "/")
	userID := parts[len(parts)-1]
	if userID == "" {
		return "", apperr.WithMessage(apperr.AuthError, "could not extract user id from claimed_id")
	}
	return userID, nil
}

// nonceIsFresh parses a response_nonce of the form "2025-06-19T03:52:20Z<random>"
// and reports whether the embedded timestamp is within maxAge of now.
func nonceIsFresh(nonce string, maxAge time.Duration) bool {
	idx := strings.Index(nonce, "Z")
	if idx < 0 {
		return false
	}
	ts, err := time.Parse(time.RFC3339, nonce[:idx+1])
	if err != nil {
		return false
	}
	return time.Since(ts) <= maxAge
}

// checkAuthentication re-poses the signed fields back to the provider's
// direct verification endpoint, per OpenID 2.0 §11.4.2.
func (c *OpenIDClient) checkAuthentication(params url.Values) error {
	signed := params.Get("openid.signed")
	if signed == "" {
		return apperr.WithMessage(apperr.AuthError, "missing openid.signed")
	}
	signedFields := strings.Split(signed, ",")

	verify := map[string]string{
		"openid.ns":   openIDNamespace,
		"openid.mode": "check_authentication",
	}
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		if key == "openid.signed" || key == "openid.sig" {
			verify[key] = values[0]
			continue
		}
		field := strings.TrimPrefix(key, "openid.")
		if contains(signedFields, field) {
			verify[key] = values[0]
		}
	}

	body, err := json.Marshal(verify)
	if err != nil {
		return apperr.WithMessage(apperr.AuthError, "failed to encode verification request")
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.ProviderBaseURL+"/openid/verify", strings.NewReader(string(body)))
	if err != nil {
		return apperr.WithMessage(apperr.AuthError, "failed to build verification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.WithMessage(apperr.AuthError, fmt.Sprintf("verification request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.WithMessage(apperr.AuthError, fmt.Sprintf("verification request returned %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "is_valid:") {
			valid, _ := strconv.ParseBool(strings.TrimSpace(strings.TrimPrefix(line, "is_valid:")))
			if valid {
				return nil
			}
			break
		}
	}
	return apperr.WithMessage(apperr.AuthError, "signature verification failed")
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

type providerUserInfo struct {
	Code int `json:"code"`
	Data struct {
		UserAvatarURL string `json:"userAvatarURL"`
		UserNickname  string `json:"userNickname"`
		UserName      string `json:"userName"`
	} `json:"data"`
}

// FetchUserInfo retrieves the public profile for a verified user id.
func (c *OpenIDClient) FetchUserInfo(userID string) (username, nickname, avatar string, err error) {
	resp, err := c.client.Get(fmt.Sprintf("%s/api/user/getInfoById?userId=%s", c.cfg.ProviderBaseURL, url.QueryEscape(userID)))
	if err != nil {
		return "", "", "", apperr.WithMessage(apperr.AuthError, fmt.Sprintf("profile request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", apperr.WithMessage(apperr.AuthError, fmt.Sprintf("profile request returned %d", resp.StatusCode))
	}

	var info providerUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", "", "", apperr.WithMessage(apperr.AuthError, "failed to decode profile response")
	}
	return info.Data.UserName, info.Data.UserNickname, info.Data.UserAvatarURL, nil
}
