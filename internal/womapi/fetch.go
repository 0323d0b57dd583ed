package womapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fetch loads one group. A blank groupID fails before any request is made;
// an empty apiKey is never sent.
func (c *Client) Fetch(ctx context.Context, groupID, apiKey string) (*Group, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, &ConfigurationError{Err: ErrMissingGroupID}
	}

	req := c.http.R().SetContext(ctx)
	if apiKey != "" {
		if c.keyIn == KeyInHeader {
			req.SetHeader(apiKeyName, apiKey)
		} else {
			req.SetQueryParam(apiKeyName, apiKey)
		}
	}

	endpoint := c.baseURL + "/groups/" + url.PathEscape(groupID)
	resp, err := req.Get(endpoint)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"group": groupID,
		}).WithError(err).Errorln("Failed to reach Wise Old Man")
		return nil, &TransportError{Err: err}
	}

	if !resp.IsSuccess() {
		logrus.WithFields(logrus.Fields{
			"group":  groupID,
			"status": resp.StatusCode(),
		}).Warnln("Wise Old Man responded with a non-2xx status")
		return nil, &HTTPStatusError{Code: resp.StatusCode()}
	}

	g, err := decodeGroup(resp.Body())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"group": groupID,
		}).WithError(err).Errorln("Failed to decode Wise Old Man group")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"group":   groupID,
		"name":    g.Name,
		"members": g.MemberCount(),
	}).Debugln("Fetched Wise Old Man group")
	return g, nil
}

// FetchAsync runs Fetch on its own goroutine and hands the result to done.
// The caller is never blocked.
func (c *Client) FetchAsync(ctx context.Context, groupID, apiKey string, done func(*Group, error)) {
	go func() {
		g, err := c.Fetch(ctx, groupID, apiKey)
		if done != nil {
			done(g, err)
		}
	}()
}

func decodeGroup(body []byte) (*Group, error) {
	var g *Group
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if g == nil {
		return nil, &DecodeError{Err: errors.New("empty group payload")}
	}
	return g, nil
}
