package authclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/rahulunni73/authclient/pkg/slogx"
)

// Authenticate logs in with username and password. With encryption enabled
// the password travels as an envelope keyed by the client id; the other
// fields stay plain. A successful login replaces any previous session.
func (c *Client) Authenticate(ctx context.Context, id, endpoint, username, password string) AuthResult {
	return c.authenticate(ctx, id, endpoint, map[string]string{
		"username": username,
		"password": password,
	}, "password")
}

// GoogleAuthenticate logs in with a Google id token, which is protected the
// same way the password is.
func (c *Client) GoogleAuthenticate(ctx context.Context, id, endpoint, username, idToken string) AuthResult {
	return c.authenticate(ctx, id, endpoint, map[string]string{
		"username": username,
		"idToken":  idToken,
	}, "idToken")
}

func (c *Client) authenticate(ctx context.Context, id, endpoint string, payload map[string]string, sensitive string) AuthResult {
	cfg, ok := c.config()
	if !ok {
		return authFailure(ErrNotConfigured)
	}

	ctx, done := c.begin(ctx, id, 0)
	defer done()
	log := slogx.FromContext(ctx)

	body, err := marshalBody(payload)
	if err != nil {
		return authFailure(err)
	}

	out := c.execute(ctx, cfg, &call{
		method:         http.MethodPost,
		endpoint:       endpoint,
		body:           body,
		authEndpoint:   true,
		sensitiveField: sensitive,
	})
	resp := out.resp
	if resp.IsError {
		log.Info("authentication failed", "status", resp.HTTPStatusCode, "code", resp.ErrorCode)
		return authResultFrom(resp)
	}

	pair := extractTokens(payloadJSON(resp.Data), c.clock.Now())
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		if result, ok := loginRejection(resp); ok {
			log.Info("authentication rejected", "status", resp.HTTPStatusCode, "login_status", result.LoginStatus)
			return result
		}
		log.Warn("authentication response is missing tokens", "status", resp.HTTPStatusCode)
		return authFailure(newError(KindMalformedResponse, resp.HTTPStatusCode, "login response did not contain both tokens", nil))
	}

	if err := c.session.Store(ctx, pair); err != nil {
		log.Error("failed to store session", "error", err)
		return authFailure(err)
	}

	log.Info("authenticated", "token_fp", cryptox.LogFingerprint(pair.AccessToken))
	result := authResultFrom(resp)
	result.Data = withoutTokens(resp.Data)
	return result
}

// Logout tells the backend to end the session and clears it locally. The
// local session is cleared whatever the backend answers, unless the backend
// could not be reached at all, so the user can retry.
func (c *Client) Logout(ctx context.Context, id, endpoint string) AuthResult {
	cfg, ok := c.config()
	if !ok {
		return authFailure(ErrNotConfigured)
	}

	ctx, done := c.begin(ctx, id, 0)
	defer done()
	log := slogx.FromContext(ctx)

	pair, err := c.session.snapshot(ctx)
	if err != nil {
		return authFailure(err)
	}
	if pair.IsZero() {
		if err := c.session.Clear(ctx); err != nil {
			return authFailure(err)
		}
		return AuthResult{LoginStatus: LoginStatusSuccess, HTTPStatusCode: http.StatusOK, Message: "already logged out"}
	}

	body, err := marshalBody(map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
	if err != nil {
		return authFailure(err)
	}

	out := c.execute(ctx, cfg, &call{
		method:       http.MethodPost,
		endpoint:     endpoint,
		body:         body,
		headers:      map[string]string{"Authorization": "Bearer " + pair.AccessToken},
		authEndpoint: true,
	})
	if out.err != nil && isUnreachable(out.err) {
		log.Warn("logout could not reach the server, keeping session", "kind", out.err.Kind)
		return authResultFrom(out.resp)
	}

	if err := c.session.Clear(ctx); err != nil {
		log.Error("failed to clear session on logout", "error", err)
		return authFailure(err)
	}
	log.Info("logged out", "status", out.resp.HTTPStatusCode)
	return authResultFrom(out.resp)
}

// isUnreachable reports failures where the request never got an answer.
func isUnreachable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrCancelled)
}

// authResultFrom derives the login status from errorReason when the backend
// sent one.
func authResultFrom(resp *NormalizedResponse) AuthResult {
	status := LoginStatusSuccess
	if resp.IsError {
		status = LoginStatusFailed
	}
	if resp.ErrorReason != nil {
		status = *resp.ErrorReason
	}
	return AuthResult{
		LoginStatus:    status,
		IsError:        resp.IsError,
		HTTPStatusCode: resp.HTTPStatusCode,
		Message:        resp.Message,
		ErrorMessage:   resp.ErrorMessage,
		ErrorCode:      resp.ErrorCode,
		Data:           resp.Data,
	}
}

// loginRejection reads a 2xx answer without tokens as a logical login
// failure when the backend gave a non-zero errorReason or a message of its
// own. The reason, when present, becomes the login status.
func loginRejection(resp *NormalizedResponse) (AuthResult, bool) {
	message := resp.Message
	if message == http.StatusText(resp.HTTPStatusCode) {
		message = ""
	}
	hasReason := resp.ErrorReason != nil && *resp.ErrorReason != 0
	if !hasReason && message == "" {
		return AuthResult{}, false
	}

	result := authResultFrom(resp)
	result.IsError = true
	if !hasReason {
		result.LoginStatus = LoginStatusFailed
	}
	result.ErrorMessage = orDefault(message, "login rejected")
	result.Message = result.ErrorMessage
	result.ErrorCode = orDefault(resp.ErrorCode, CodeBusinessError)
	result.Data = withoutTokens(resp.Data)
	return result, true
}

func authFailure(err error) AuthResult {
	return authResultFrom(errorResponse(err))
}
