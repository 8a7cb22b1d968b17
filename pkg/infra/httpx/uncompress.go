package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// DecodeChain decodes a response body according to a Content-Encoding header
// value. Supports chained encodings (e.g., "gzip, br") applied right-to-left
// and the following algorithms: br, gzip, zstd, deflate. For deflate, both
// zlib-wrapped and raw deflate are handled.
// Returns the decoded body, whether it changed, and an error if decoding failed.
func DecodeChain(contentEncoding string, body []byte) ([]byte, bool, error) {
	if contentEncoding == "" {
		return body, false, nil
	}
	encodings := strings.Split(contentEncoding, ",")
	changed := false
	for i := len(encodings) - 1; i >= 0; i-- {
		enc := strings.TrimSpace(strings.ToLower(encodings[i]))
		switch enc {
		case "br":
			out, err := decodeBrotli(body)
			if err != nil {
				return nil, false, err
			}
			body = out
			changed = true
		case "gzip":
			out, err := decodeGzip(body)
			if err != nil {
				return nil, false, err
			}
			body = out
			changed = true
		case "zstd":
			out, err := decodeZstd(body)
			if err != nil {
				return nil, false, err
			}
			body = out
			changed = true
		case "deflate":
			out, err := decodeDeflate(body)
			if err != nil {
				return nil, false, err
			}
			body = out
			changed = true
		case "compress", "identity", "":
			// No action
		default:
			return nil, false, fmt.Errorf("unsupported content-encoding: %q", enc)
		}
	}
	return body, changed, nil
}

func decodeBrotli(body []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
}

func decodeGzip(body []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(gr)
	cerr := gr.Close()
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, cerr
	}
	return out, nil
}

func decodeZstd(body []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func decodeDeflate(body []byte) ([]byte, error) {
	// Try zlib-wrapped first (RFC)
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err == nil {
		out, rerr := io.ReadAll(zr)
		cerr := zr.Close()
		if rerr != nil {
			return nil, rerr
		}
		if cerr != nil {
			return nil, cerr
		}
		return out, nil
	}
	// Fallback to raw DEFLATE
	fr := flate.NewReader(bytes.NewReader(body))
	out, rerr := io.ReadAll(fr)
	cerr := fr.Close()
	if rerr != nil {
		return nil, rerr
	}
	if cerr != nil {
		return nil, cerr
	}
	return out, nil
}
