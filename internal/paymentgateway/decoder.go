package paymentgateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	types "github.com/frahmantamala/credit-payments/internal/core/datamodel/paymentgateway"
)

// ErrDecode wraps every failure to turn a callback body into Params.
var ErrDecode = errors.New("paymentgateway: undecodable callback body")

const (
	mediaTypeForm      = "application/x-www-form-urlencoded"
	mediaTypeMultipart = "multipart/form-data"

	// maxMultipartMemory caps the bytes of non-file parts held in memory.
	maxMultipartMemory = 1 << 20
)

func decodeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// Decode parses a PayU callback body. A missing content type is read as form-urlencoded,
// which is what PayU posts. For repeated keys the first value wins.
func Decode(body []byte, contentType string) (types.Params, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, decodeError("empty body")
	}

	mediaType := mediaTypeForm
	var mediaParams map[string]string
	if strings.TrimSpace(contentType) != "" {
		var err error
		mediaType, mediaParams, err = mime.ParseMediaType(contentType)
		if err != nil {
			return nil, decodeError("content type %q: %v", contentType, err)
		}
	}

	switch mediaType {
	case mediaTypeForm:
		return decodeForm(body)
	case mediaTypeMultipart:
		return decodeMultipart(body, mediaParams["boundary"])
	default:
		return nil, decodeError("unsupported media type %q", mediaType)
	}
}

func decodeForm(body []byte) (types.Params, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, decodeError("form body: %v", err)
	}
	params := make(types.Params, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			params[key] = vs[0]
		}
	}
	return params, nil
}

func decodeMultipart(body []byte, boundary string) (types.Params, error) {
	if boundary == "" {
		return nil, decodeError("multipart body without boundary")
	}
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	form, err := reader.ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, decodeError("multipart body: %v", err)
	}
	defer form.RemoveAll()

	params := make(types.Params, len(form.Value))
	for key, vs := range form.Value {
		if len(vs) > 0 {
			params[key] = vs[0]
		}
	}
	return params, nil
}

// Encode renders params as a form-urlencoded body, the shape PayU posts.
func Encode(params types.Params) io.Reader {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return strings.NewReader(values.Encode())
}
