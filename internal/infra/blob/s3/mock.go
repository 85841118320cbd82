package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // etag only
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockBucket is the name of the bucket served by NewMockForTests.
const MockBucket = "skylink-test"

// NewMockForTests returns a Store whose client talks to an in-process fake
// bucket. It supports the Head/Get/Put/Delete/ListObjectsV2 calls Store makes,
// paging listings two keys at a time.
func NewMockForTests() *Store {
	fake := &fakeBucket{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIDTEST", "SECRETTEST", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://s3.mock.local")
	})
	return &Store{client: client, bucket: MockBucket, presign: s3.NewPresignClient(client)}
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func (o fakeObject) etag() string {
	sum := md5.Sum(o.body) //nolint:gosec // etag only
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

const fakePageSize = 2

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	q := req.URL.Query()
	switch {
	case req.Method == http.MethodGet && q.Get("list-type") == "2":
		return f.list(q.Get("prefix"), q.Get("continuation-token")), nil
	case req.Method == http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		return respond(http.StatusOK, obj.header(), nil), nil
	case req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}},
				[]byte("<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>")), nil
		}
		return respond(http.StatusOK, obj.header(), obj.body), nil
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeAWSChunked(body); ok {
			body = decoded
		}
		obj := fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: map[string]string{}, modified: time.Now().UTC()}
		for name, values := range req.Header {
			if k, ok := strings.CutPrefix(strings.ToLower(name), "x-amz-meta-"); ok && len(values) > 0 {
				obj.metadata[k] = values[0]
			}
		}
		f.objects[key] = obj
		h := http.Header{}
		h.Set("ETag", obj.etag())
		return respond(http.StatusOK, h, nil), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (o fakeObject) header() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
	}
	// header keys must be canonical; the SDK looks up "Etag".
	h.Set("ETag", o.etag())
	for k, v := range o.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (f *fakeBucket) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := len(keys) > fakePageSize
	if truncated {
		keys = keys[:fakePageSize]
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount>", MockBucket, prefix, len(keys))
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%s</NextContinuationToken>", keys[len(keys)-1])
	}
	for _, k := range keys {
		obj := f.objects[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), obj.etag(), obj.modified.Format(time.RFC3339))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, []byte(b.String()))
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeAWSChunked unwraps a streaming upload body of the form
// "<hex size>[;chunk-signature=...]\r\n<data>\r\n...0\r\n".
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	rest := b
	for {
		line, after, ok := bytes.Cut(rest, []byte("\r\n"))
		if !ok {
			return nil, false
		}
		sizeField, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeField), 16, 64)
		if err != nil || int64(len(after)) < size {
			return nil, false
		}
		if size == 0 {
			return out, true
		}
		out = append(out, after[:size]...)
		rest = bytes.TrimPrefix(after[size:], []byte("\r\n"))
	}
}
