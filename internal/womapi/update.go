package womapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

const nothingToUpdate = "Nothing to update."

type updateAllRequest struct {
	VerificationCode string `json:"verificationCode"`
}

type updateAllResponse struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// UpdateAll asks Wise Old Man to re-fetch every member of the group
// (POST /groups/{id}/update-all) and returns how many were queued. A 400
// "Nothing to update." comes back as ErrNothingToUpdate.
func (c *Client) UpdateAll(ctx context.Context, groupID, verificationCode string) (int, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return 0, &ConfigurationError{Err: ErrMissingGroupID}
	}
	verificationCode = strings.TrimSpace(verificationCode)
	if verificationCode == "" {
		return 0, &ConfigurationError{Err: ErrMissingVerificationCode}
	}

	endpoint := c.baseURL + "/groups/" + url.PathEscape(groupID) + "/update-all"
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(updateAllRequest{VerificationCode: verificationCode}).
		Post(endpoint)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"group": groupID,
		}).WithError(err).Errorln("Failed to reach Wise Old Man")
		return 0, &TransportError{Err: err}
	}

	var body updateAllResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() {
		if body.Message == nothingToUpdate {
			return 0, ErrNothingToUpdate
		}
		logrus.WithFields(logrus.Fields{
			"group":   groupID,
			"status":  resp.StatusCode(),
			"message": body.Message,
		}).Warnln("Wise Old Man rejected group update")
		return 0, &HTTPStatusError{Code: resp.StatusCode(), Message: body.Message}
	}
	if decodeErr != nil {
		return 0, &DecodeError{Err: decodeErr}
	}

	logrus.WithFields(logrus.Fields{
		"group":   groupID,
		"updated": body.Count,
	}).Infoln("Requested Wise Old Man group update")
	return body.Count, nil
}
