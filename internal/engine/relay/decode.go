package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeBody undoes the response's Content-Encoding. The transport leaves the
// body compressed whenever the forwarded headers carried their own
// Accept-Encoding. Unknown encodings and corrupt streams yield the raw bytes.
func decodeBody(raw []byte, encoding string, limit int64) []byte {
	var (
		r   io.Reader
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		r, err = zlib.NewReader(bytes.NewReader(raw))
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	case "zstd":
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(bytes.NewReader(raw))
		if err == nil {
			defer zr.Close()
			r = zr
		}
	default:
		return raw
	}
	if err != nil {
		return raw
	}

	decoded, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return raw
	}
	return decoded
}

// parseData converts a response body into the value stored under "data": the
// parsed document for JSON content types, the text otherwise.
func parseData(body []byte, contentType string) interface{} {
	if isJSONContentType(contentType) {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && json.Valid(trimmed) {
			return json.RawMessage(trimmed)
		}
	}
	return string(body)
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
