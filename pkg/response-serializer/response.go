// Package serializer converts HTTP responses to and from their stored byte
// representation. Responses are stored in HTTP/1.1 wire format with the
// storage timestamp carried in a private header that is stripped again on
// read.
package serializer

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Ocache-Stored-At"

type StoredResponse struct {
	Response *http.Response
	// The value of the clock when the response was written to the cache.
	StoredAt time.Time
}

// StoredResponseToBytes serializes the response for storage.
// The response body is intact afterwards and can still be read.
func StoredResponseToBytes(sres StoredResponse) ([]byte, error) {
	res := sres.Response
	res.Header.Set(storedAtHeaderName, strconv.FormatInt(sres.StoredAt.Unix(), 10))
	b, err := responseToBytes(res)
	res.Header.Del(storedAtHeaderName)
	return b, err
}

// BytesToStoredResponse deserializes a previously stored response.
func BytesToStoredResponse(b []byte) (StoredResponse, error) {
	sres := StoredResponse{}
	res, err := bytesToResponse(b)
	if err != nil {
		return sres, err
	}
	storedAt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return sres, err
	}
	res.Header.Del(storedAtHeaderName)
	sres.Response = res
	sres.StoredAt = time.Unix(storedAt, 0)
	return sres, nil
}

// bytesToResponse converts a byte slice to a http.Response.
func bytesToResponse(b []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
}

// responseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// Writing consumes the body, so it is set back from a re-read of the buffer.
func responseToBytes(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	return bts, nil
}
