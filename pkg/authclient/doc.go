/*
Package authclient provides an authenticated HTTP client for backends that
issue access/refresh token pairs and optionally wrap payloads in an AES-GCM
envelope.

# Overview

A Client owns one TokenSession. Every authenticated request asks the session
for a valid access token; tokens that expire within ExpirySkew are refreshed
first. At most one refresh runs at a time: concurrent callers that need a
new token wait for the same refresh and share its outcome.

	client := authclient.NewClient(
		authclient.WithStore(store),
		authclient.WithLogger(logger),
	)

	res := client.Initialize(authclient.ClientConfig{
		BaseURL:           "https://api.example.com",
		EncryptionEnabled: true,
		ClientID:          clientID,
		PassPhrase:        passPhrase,
	})
	if !res.IsConfigured {
		return errors.New(res.Message)
	}

	login := client.Authenticate(ctx, "", "/api/auth/login", username, password)
	if login.IsError {
		return fmt.Errorf("login failed: %s", login.ErrorMessage)
	}

	resp := client.Get(ctx, "", "/api/profile", authclient.RequestConfig{})

# Results

Public operations do not return errors. Every outcome, including transport
failures and undecryptable bodies, is described by the returned
NormalizedResponse, AuthResult or FileResult through IsError,
HTTPStatusCode, ErrorMessage and ErrorCode. The error codes of failures
raised by the client are the ErrorKind values.

# Unauthorized responses

A request rejected with 401 triggers one refresh and one resend. A second
401 yields ErrUnauthorized. Authenticate, logout and refresh calls are never
retried.

# Encryption

With encryption enabled, request bodies are sent as
{"encryptedContent": "<envelope>"} keyed by the pass phrase. Authenticate
requests are the exception: only the password (or id token) is replaced by
an envelope keyed by the client id. Responses carrying encryptedContent are
decrypted before they are normalized. See cryptox.EncryptEnvelope for the
envelope format.

# Cancellation

Every operation runs under a request id, generated when the caller passes an
empty one. CancelRequest aborts the operations of one id and
CancelAllRequests aborts all of them. A refresh shared with other callers is
not aborted.
*/
package authclient
