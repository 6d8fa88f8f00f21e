package submission

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Doer is the part of *http.Client the strategies use.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// postMultipart streams files as a multipart body under field and returns the
// response. Callers own resp.Body.
func postMultipart(ctx context.Context, client Doer, url, field string, files []Payload, useRelPath bool) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, field, files, useRelPath))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return resp, nil
}

func writeParts(mw *multipart.Writer, field string, files []Payload, useRelPath bool) error {
	for _, f := range files {
		filename := f.Name
		if useRelPath && f.RelPath != "" {
			filename = f.RelPath
		}
		if err := writePart(mw, field, filename, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, field, filename string, f Payload) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(filename)))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", filename, err)
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// drain discards what is left of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
