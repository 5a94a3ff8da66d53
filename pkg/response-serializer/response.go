package serializer

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Ocache-Stored-At"

// StoredResponse is an immutable snapshot of an origin response taken at
// cache-write time.
type StoredResponse struct {
	Response *http.Response
	// The value of the clock at the time the snapshot was written.
	// Determines eviction order.
	StoredAt time.Time
}

// BytesToStoredResponse parses a stored snapshot back into a response.
// The stored-at stamp travels inside a private header, which is stripped
// before the response is handed back.
func BytesToStoredResponse(b []byte) (StoredResponse, error) {
	sRes := StoredResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, err
	}
	sRes.Response = res
	storedInt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return sRes, err
	}
	sRes.StoredAt = time.Unix(storedInt, 0)
	res.Header.Del(storedAtHeaderName)
	return sRes, nil
}

// StoredResponseToBytes serializes the snapshot to its HTTP/1.1 wire form.
// The response body is readable again when this returns.
func StoredResponseToBytes(sRes StoredResponse) ([]byte, error) {
	res := sRes.Response
	res.Header.Set(storedAtHeaderName, strconv.FormatInt(sRes.StoredAt.Unix(), 10))
	bts, err := responseToBytes(res)
	res.Header.Del(storedAtHeaderName)
	return bts, err
}

// responseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
func responseToBytes(res *http.Response) ([]byte, error) {
	// write response to buffer
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	// set response body back
	bts := buf.Bytes()
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	// return buffer bytes
	return bts, nil
}
