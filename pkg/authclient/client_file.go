package authclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/rahulunni73/authclient/pkg/cryptox"
	"github.com/rahulunni73/authclient/pkg/slogx"
)

const defaultFileField = "file"

// UploadFile sends a local file as multipart/form-data. The file part is
// always sent as is; with encryption enabled the metadata fields are sent as
// one encryptedContent field instead of individually.
func (c *Client) UploadFile(ctx context.Context, id, endpoint string, up FileUpload) FileResult {
	cfg, ok := c.config()
	if !ok {
		return fileFailure(ErrNotConfigured)
	}

	ctx, done := c.begin(ctx, id, 0)
	defer done()
	log := slogx.FromContext(ctx)

	body, contentType, size, err := buildMultipart(cfg, up)
	if err != nil {
		log.Warn("failed to build upload", "path", up.FilePath, "error", err)
		return fileFailure(err)
	}

	out := c.execute(ctx, cfg, &call{
		method:       http.MethodPost,
		endpoint:     endpoint,
		body:         body,
		contentType:  contentType,
		headers:      up.Headers,
		requiresAuth: true,
		opaqueBody:   true,
	})

	result := fileResultFrom(out.resp)
	result.FilePath = up.FilePath
	result.Size = size
	return result
}

func buildMultipart(cfg ClientConfig, up FileUpload) ([]byte, string, int64, error) {
	f, err := os.Open(up.FilePath)
	if err != nil {
		return nil, "", 0, newError(KindInvalidRequest, http.StatusBadRequest, "cannot open upload file", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeMetadata(w, cfg, up.Metadata); err != nil {
		return nil, "", 0, err
	}

	name := up.FileName
	if name == "" {
		name = filepath.Base(up.FilePath)
	}
	ct := up.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(name))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	field := up.FieldName
	if field == "" {
		field = defaultFileField
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", 0, newError(KindInvalidRequest, 0, "failed to create file part", err)
	}
	size, err := io.Copy(part, f)
	if err != nil {
		return nil, "", 0, newError(KindInvalidRequest, 0, "failed to read upload file", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", 0, newError(KindInvalidRequest, 0, "failed to finish multipart body", err)
	}
	return buf.Bytes(), w.FormDataContentType(), size, nil
}

func writeMetadata(w *multipart.Writer, cfg ClientConfig, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}

	if cfg.EncryptionEnabled {
		plain, err := json.Marshal(metadata)
		if err != nil {
			return newError(KindInvalidRequest, 0, "metadata is not JSON encodable", err)
		}
		sealed, err := cryptox.EncryptEnvelope(string(plain), cfg.PassPhrase)
		if err != nil {
			return fromCryptoError(err)
		}
		if err := w.WriteField(envelopeField, sealed); err != nil {
			return newError(KindInvalidRequest, 0, "failed to write metadata", err)
		}
		return nil
	}

	for k, v := range metadata {
		if err := w.WriteField(k, v); err != nil {
			return newError(KindInvalidRequest, 0, "failed to write metadata", err)
		}
	}
	return nil
}

// DownloadFile fetches a file and writes it to destPath. A nil body issues a
// GET, anything else a POST with that JSON body.
func (c *Client) DownloadFile(ctx context.Context, id, endpoint string, body any, rc RequestConfig, destPath string) FileResult {
	if destPath == "" {
		return fileFailure(newError(KindInvalidRequest, http.StatusBadRequest, "destination path is required", nil))
	}

	method := http.MethodGet
	if body != nil {
		method = http.MethodPost
	}
	result, data := c.download(ctx, id, method, endpoint, body, rc)
	if result.IsError {
		return result
	}

	if err := writeFileAtomic(destPath, data); err != nil {
		c.logger.Error("failed to write download", "path", destPath, "error", err)
		return fileFailure(newError(KindStorage, result.HTTPStatusCode, "failed to write downloaded file", err))
	}
	result.FilePath = destPath
	return result
}

// DownloadFileBase64 fetches a file with GET and returns it base64 encoded.
func (c *Client) DownloadFileBase64(ctx context.Context, id, endpoint string, rc RequestConfig) FileResult {
	result, data := c.download(ctx, id, http.MethodGet, endpoint, nil, rc)
	if !result.IsError {
		result.Base64Data = base64.StdEncoding.EncodeToString(data)
	}
	return result
}

// DownloadFileWithPost fetches a file produced by a POST and returns it
// base64 encoded.
func (c *Client) DownloadFileWithPost(ctx context.Context, id, endpoint string, body any, rc RequestConfig) FileResult {
	result, data := c.download(ctx, id, http.MethodPost, endpoint, body, rc)
	if !result.IsError {
		result.Base64Data = base64.StdEncoding.EncodeToString(data)
	}
	return result
}

func (c *Client) download(ctx context.Context, id, method, endpoint string, body any, rc RequestConfig) (FileResult, []byte) {
	cfg, ok := c.config()
	if !ok {
		return fileFailure(ErrNotConfigured), nil
	}

	data, err := marshalBody(body)
	if err != nil {
		return fileFailure(err), nil
	}

	ctx, done := c.begin(ctx, id, rc.Timeout)
	defer done()

	out := c.execute(ctx, cfg, &call{
		method:       method,
		endpoint:     endpoint,
		body:         data,
		headers:      rc.Headers,
		requiresAuth: !rc.SkipAuth,
		binary:       true,
	})

	result := fileResultFrom(out.resp)
	if result.IsError || out.raw == nil {
		return result, nil
	}
	result.ContentType = out.raw.Header.Get("Content-Type")
	result.Size = int64(len(out.raw.Body))
	return result, out.raw.Body
}

// writeFileAtomic writes through a temp file in the destination directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func fileResultFrom(resp *NormalizedResponse) FileResult {
	return FileResult{
		IsError:        resp.IsError,
		HTTPStatusCode: resp.HTTPStatusCode,
		Message:        resp.Message,
		ErrorMessage:   resp.ErrorMessage,
		ErrorCode:      resp.ErrorCode,
		Data:           resp.Data,
	}
}

func fileFailure(err error) FileResult {
	return fileResultFrom(errorResponse(err))
}
