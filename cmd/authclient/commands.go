package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rahulunni73/authclient/internal/app"
	"github.com/rahulunni73/authclient/pkg/authclient"
)

// output is what a command prints as JSON. failed sets a non-zero exit code.
type output struct {
	value  any
	failed bool
}

type command struct {
	help string
	run  func(ctx context.Context, a *app.Application, args []string) (*output, error)
}

var commands = map[string]command{
	"info":         {"show the client configuration", cmdInfo},
	"login":        {"authenticate with username and password", cmdLogin},
	"google-login": {"authenticate with a Google id token", cmdGoogleLogin},
	"get":          {"GET an endpoint", httpCommand("GET")},
	"post":         {"POST a JSON body to an endpoint", httpCommand("POST")},
	"put":          {"PUT a JSON body to an endpoint", httpCommand("PUT")},
	"delete":       {"DELETE an endpoint", httpCommand("DELETE")},
	"upload":       {"upload a file as multipart form data", cmdUpload},
	"download":     {"download a file to disk or as base64", cmdDownload},
	"logout":       {"log out and clear the stored session", cmdLogout},
	"token-info":   {"describe the stored session", cmdTokenInfo},
	"invalidate":   {"mark the access token expired", cmdInvalidate},
	"clear":        {"remove the stored session", cmdClear},
	"keep":         {"refresh the session in the background until interrupted", cmdKeep},
}

func commandNames() []string {
	return slices.Sorted(maps.Keys(commands))
}

// ============================================================================
// Session commands
// ============================================================================

func cmdInfo(_ context.Context, a *app.Application, args []string) (*output, error) {
	if err := noFlags("info", args); err != nil {
		return nil, err
	}
	info := a.Client().ClientInitInfo()
	return &output{value: info, failed: !info.IsConfigured}, nil
}

func cmdLogin(ctx context.Context, a *app.Application, args []string) (*output, error) {
	fs := newFlagSet("login")
	endpoint := fs.String("endpoint", "/api/auth/login", "login endpoint")
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password (default $AUTHCLIENT_PASSWORD)")
	id := fs.String("id", "", "request id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *password == "" {
		*password = os.Getenv("AUTHCLIENT_PASSWORD")
	}
	if *username == "" || *password == "" {
		return nil, errors.New("--username and --password are required")
	}

	res := a.Client().Authenticate(ctx, *id, *endpoint, *username, *password)
	return &output{value: res, failed: res.IsError}, nil
}

func cmdGoogleLogin(ctx context.Context, a *app.Application, args []string) (*output, error) {
	fs := newFlagSet("google-login")
	endpoint := fs.String("endpoint", "/api/auth/google", "login endpoint")
	username := fs.String("username", "", "account username")
	idToken := fs.String("id-token", "", "Google id token")
	id := fs.String("id", "", "request id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *idToken == "" {
		return nil, errors.New("--id-token is required")
	}

	res := a.Client().GoogleAuthenticate(ctx, *id, *endpoint, *username, *idToken)
	return &output{value: res, failed: res.IsError}, nil
}

func cmdLogout(ctx context.Context, a *app.Application, args []string) (*output, error) {
	fs := newFlagSet("logout")
	endpoint := fs.String("endpoint", "/api/auth/logout", "logout endpoint")
	id := fs.String("id", "", "request id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	res := a.Client().Logout(ctx, *id, *endpoint)
	return &output{value: res, failed: res.IsError}, nil
}

func cmdTokenInfo(ctx context.Context, a *app.Application, args []string) (*output, error) {
	if err := noFlags("token-info", args); err != nil {
		return nil, err
	}
	info, err := a.Client().TokenInfo(ctx)
	if err != nil {
		return nil, err
	}
	return &output{value: info}, nil
}

func cmdInvalidate(ctx context.Context, a *app.Application, args []string) (*output, error) {
	if err := noFlags("invalidate", args); err != nil {
		return nil, err
	}
	return nil, a.Client().InvalidateAccessToken(ctx)
}

func cmdClear(ctx context.Context, a *app.Application, args []string) (*output, error) {
	if err := noFlags("clear", args); err != nil {
		return nil, err
	}
	return nil, a.Client().ClearAllTokens(ctx)
}

func cmdKeep(ctx context.Context, a *app.Application, args []string) (*output, error) {
	if err := noFlags("keep", args); err != nil {
		return nil, err
	}
	return nil, a.Run(ctx)
}

// ============================================================================
// Request commands
// ============================================================================

// requestFlags are shared by every command that sends a request.
type requestFlags struct {
	id             string
	headers        keyValues
	skipAuth       bool
	skipEncryption bool
	timeout        time.Duration
}

func (r *requestFlags) register(fs *flag.FlagSet) {
	r.headers = keyValues{sep: ":"}
	fs.StringVar(&r.id, "id", "", "request id")
	fs.Var(&r.headers, "H", "extra header as 'Name: value' (repeatable)")
	fs.BoolVar(&r.skipAuth, "skip-auth", false, "send without a bearer token")
	fs.BoolVar(&r.skipEncryption, "skip-encryption", false, "send the body unencrypted")
	fs.DurationVar(&r.timeout, "timeout", 0, "per-request timeout")
}

func (r *requestFlags) config() authclient.RequestConfig {
	return authclient.RequestConfig{
		Headers:        r.headers.values,
		SkipAuth:       r.skipAuth,
		SkipEncryption: r.skipEncryption,
		Timeout:        r.timeout,
	}
}

func httpCommand(method string) func(context.Context, *app.Application, []string) (*output, error) {
	return func(ctx context.Context, a *app.Application, args []string) (*output, error) {
		fs := newFlagSet(strings.ToLower(method))
		var rf requestFlags
		rf.register(fs)
		data := fs.String("data", "", "JSON body, or @file to read it from a file")

		endpoint, err := parseWithEndpoint(fs, args)
		if err != nil {
			return nil, err
		}
		body, err := readBody(*data)
		if err != nil {
			return nil, err
		}

		c := a.Client()
		var res *authclient.NormalizedResponse
		switch method {
		case "GET":
			res = c.Get(ctx, rf.id, endpoint, rf.config())
		case "POST":
			res = c.Post(ctx, rf.id, endpoint, body, rf.config())
		case "PUT":
			res = c.Put(ctx, rf.id, endpoint, body, rf.config())
		case "DELETE":
			res = c.Delete(ctx, rf.id, endpoint, rf.config())
		}
		return &output{value: res, failed: res.IsError}, nil
	}
}

func cmdUpload(ctx context.Context, a *app.Application, args []string) (*output, error) {
	fs := newFlagSet("upload")
	id := fs.String("id", "", "request id")
	file := fs.String("file", "", "path of the file to upload")
	field := fs.String("field", "", "multipart field name (default \"file\")")
	name := fs.String("name", "", "file name sent to the server (default base name of --file)")
	contentType := fs.String("type", "", "file content type (default guessed from the extension)")
	meta := keyValues{sep: "="}
	fs.Var(&meta, "meta", "metadata field as key=value (repeatable)")

	endpoint, err := parseWithEndpoint(fs, args)
	if err != nil {
		return nil, err
	}
	if *file == "" {
		return nil, errors.New("--file is required")
	}

	res := a.Client().UploadFile(ctx, *id, endpoint, authclient.FileUpload{
		FilePath:    *file,
		FieldName:   *field,
		FileName:    *name,
		ContentType: *contentType,
		Metadata:    meta.values,
	})
	return &output{value: res, failed: res.IsError}, nil
}

func cmdDownload(ctx context.Context, a *app.Application, args []string) (*output, error) {
	fs := newFlagSet("download")
	var rf requestFlags
	rf.register(fs)
	dest := fs.String("o", "", "write to this path instead of printing base64")
	data := fs.String("data", "", "JSON body to POST, or @file; GET when empty")

	endpoint, err := parseWithEndpoint(fs, args)
	if err != nil {
		return nil, err
	}
	body, err := readBody(*data)
	if err != nil {
		return nil, err
	}

	c := a.Client()
	var res authclient.FileResult
	switch {
	case *dest != "":
		res = c.DownloadFile(ctx, rf.id, endpoint, body, rf.config(), *dest)
	case body != nil:
		res = c.DownloadFileWithPost(ctx, rf.id, endpoint, body, rf.config())
	default:
		res = c.DownloadFileBase64(ctx, rf.id, endpoint, rf.config())
	}
	return &output{value: res, failed: res.IsError}, nil
}

// ============================================================================
// Flag helpers
// ============================================================================

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func noFlags(name string, args []string) error {
	return newFlagSet(name).Parse(args)
}

// parseWithEndpoint parses flags around a single positional endpoint.
func parseWithEndpoint(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() == 0 {
		return "", errors.New("endpoint is required")
	}
	endpoint := fs.Arg(0)
	// Allow flags after the endpoint.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return "", err
	}
	if fs.NArg() > 0 {
		return "", fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return endpoint, nil
}

// readBody returns nil for an empty arg, the file contents for @path, and
// the literal otherwise. The body must be valid JSON.
func readBody(arg string) (any, error) {
	if arg == "" {
		return nil, nil
	}
	raw := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if path == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
	}
	if !json.Valid(raw) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// keyValues is a repeatable flag of key/value pairs split on sep.
type keyValues struct {
	sep    string
	values map[string]string
}

func (kv *keyValues) String() string {
	if kv == nil || len(kv.values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(kv.values))
	for _, k := range slices.Sorted(maps.Keys(kv.values)) {
		parts = append(parts, k+kv.sep+kv.values[k])
	}
	return strings.Join(parts, ",")
}

func (kv *keyValues) Set(s string) error {
	k, v, ok := strings.Cut(s, kv.sep)
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("expected key%svalue, got %q", kv.sep, s)
	}
	if kv.values == nil {
		kv.values = make(map[string]string)
	}
	kv.values[k] = strings.TrimSpace(v)
	return nil
}
