package cache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Entry is a stored response snapshot. Entries carry no TTL; they live until
// their generation is deleted.
type Entry struct {
	Status   int         `cbor:"status" msgpack:"status"`
	Header   http.Header `cbor:"header" msgpack:"header"`
	Body     []byte      `cbor:"body" msgpack:"body"`
	StoredAt time.Time   `cbor:"stored_at" msgpack:"stored_at"`
}

// Fingerprint is the lookup key of a request: method and URL, query included.
func Fingerprint(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + " " + u.String()
}

// Snapshot captures resp with an already drained body. The header map is
// cloned so the stored entry does not alias the caller-facing response.
func Snapshot(resp *http.Response, body []byte) Entry {
	return Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		StoredAt: time.Now().UTC(),
	}
}

// Response materializes a fresh *http.Response for req. Each call returns an
// independent body reader.
func (e Entry) Response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
