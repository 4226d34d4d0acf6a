package web

import (
	"encoding/base64"
	"errors"
	"strings"

	"gocv.io/x/gocv"
)

const jpegDataURLPrefix = "data:image/jpeg;base64,"

var errBadDataURL = errors.New("web: malformed data URL")

// decodeDataURL returns the bytes after the comma of a base64 data URL.
// A bare base64 payload is accepted too.
func decodeDataURL(s string) ([]byte, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		_, after, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errBadDataURL
		}
		payload = after
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, errBadDataURL
	}
	if len(data) == 0 {
		return nil, errBadDataURL
	}
	return data, nil
}

// encodeJPEGDataURL encodes img as a JPEG data URL
func encodeJPEGDataURL(img gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return "", err
	}
	defer buf.Close()

	return jpegDataURLPrefix + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
