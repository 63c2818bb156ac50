package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

//MemberReadonlyScope is the only scope the client needs
const MemberReadonlyScope = "https://www.googleapis.com/auth/admin.directory.group.member.readonly"

//ErrNoCredentials is returned when neither a credentials file nor a token was configured
var ErrNoCredentials = errors.New("no directory credentials configured")

type hasMemberResponse struct {
	IsMember bool `json:"isMember"`
}

//Client answers group membership questions against the Admin SDK directory API
type Client struct {
	http   *resty.Client
	tokens oauth2.TokenSource
	log    logging.Logger
}

//NewClient creates a directory client. Every request is bounded by timeout
//and retried twice on transport failures.
func NewClient(baseURL string, tokens oauth2.TokenSource, timeout time.Duration, log logging.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		tokens: tokens,
		log:    log,
	}
}

//IsMember reports whether email belongs to groupKey, directly or through a nested group.
//An unknown member is a plain "no"; anything else that is not a 2xx is an error.
func (c *Client) IsMember(ctx context.Context, groupKey, email string) (bool, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return false, fmt.Errorf("failed to obtain directory token: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetPathParams(map[string]string{
			"groupKey":  groupKey,
			"memberKey": email,
		}).
		SetResult(&hasMemberResponse{}).
		Get("/groups/{groupKey}/hasMember/{memberKey}")
	if err != nil {
		return false, fmt.Errorf("directory request for group %s failed: %w", groupKey, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		c.log.Debugf("%s is not known to group %s", email, groupKey)
		return false, nil
	case !resp.IsSuccess():
		return false, fmt.Errorf("directory returned %s for group %s", resp.Status(), groupKey)
	}

	result, ok := resp.Result().(*hasMemberResponse)
	if !ok {
		return false, fmt.Errorf("unexpected directory response for group %s", groupKey)
	}

	return result.IsMember, nil
}

//NewTokenSource builds a token source from a service account key file with
//domain-wide delegation on behalf of subject, or from a static bearer token.
func NewTokenSource(ctx context.Context, credentialsFile, subject, staticToken string) (oauth2.TokenSource, error) {
	if credentialsFile != "" {
		key, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory credentials: %w", err)
		}

		conf, err := google.JWTConfigFromJSON(key, MemberReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse directory credentials: %w", err)
		}
		conf.Subject = subject

		return conf.TokenSource(ctx), nil
	}

	if staticToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: staticToken}), nil
	}

	return nil, ErrNoCredentials
}
