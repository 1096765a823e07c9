package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	updatedAtMetaKey = "updated_at"
	statusMetaKey    = "status"
	typeMetaKey      = "type"

	generationMarker = ".generation"
	entryContentType = "application/vnd.wanderwise.entry"
	deleteBatchSize  = 1000
)

var _ Store = (*S3Store)(nil)

// S3Store keeps every generation under its own key prefix in a bucket, so
// several edge replicas can share one offline copy.
type S3Store struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Store(bucket, prefix string, client *s3.Client) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Store) Open(ctx context.Context, generation string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.generationPrefix(generation) + generationMarker),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("open generation %s: %w", generation, err)
	}
	return nil
}

func (s *S3Store) Match(ctx context.Context, generation, key string) (Response, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(generation, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Response{}, ErrNotFound
		}
		return Response{}, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Response{}, err
	}
	resp, err := decodeEntry(data)
	if err != nil {
		return Response{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return resp, nil
}

// Put stores resp as an entry envelope: a JSON line holding status, type and
// headers, then the raw body. Object metadata only carries small scalars.
func (s *S3Store) Put(ctx context.Context, generation, key string, resp Response) error {
	data, err := encodeEntry(resp)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(generation, key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(entryContentType),
		Metadata:    encodeMetadata(resp),
	})
	return err
}

// PutAll uploads entries in order and removes what it already wrote when an
// upload fails, so a generation never holds half a batch.
func (s *S3Store) PutAll(ctx context.Context, generation string, entries []Entry) error {
	written := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := s.Put(ctx, generation, e.Key, e.Response); err != nil {
			if rbErr := s.deleteKeys(context.WithoutCancel(ctx), written); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		written = append(written, s.objectKey(generation, e.Key))
	}
	return nil
}

func (s *S3Store) Generations(ctx context.Context) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list generations: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (s *S3Store) Delete(ctx context.Context, generation string) error {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.generationPrefix(generation)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list generation %s: %w", generation, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return s.deleteKeys(ctx, keys)
}

func (s *S3Store) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
	}
	return nil
}

func (s *S3Store) generationPrefix(generation string) string {
	return s.prefix + generation + "/"
}

// objectKey hashes the request identity; raw URLs can hold characters S3
// keys should not.
func (s *S3Store) objectKey(generation, key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.generationPrefix(generation) + hex.EncodeToString(sum[:])
}

type entryEnvelope struct {
	Status   int         `json:"status"`
	Type     Type        `json:"type"`
	Header   http.Header `json:"header,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

func encodeEntry(resp Response) ([]byte, error) {
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	head, err := json.Marshal(entryEnvelope{
		Status:   resp.Status,
		Type:     resp.Type,
		Header:   resp.Header,
		StoredAt: storedAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(head)+1+len(resp.Body))
	data = append(data, head...)
	data = append(data, '\n')
	return append(data, resp.Body...), nil
}

func decodeEntry(data []byte) (Response, error) {
	head, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return Response{}, errors.New("missing entry envelope")
	}
	var env entryEnvelope
	if err := json.Unmarshal(head, &env); err != nil {
		return Response{}, err
	}
	if env.Header == nil {
		env.Header = http.Header{}
	}
	if env.Type == "" {
		env.Type = TypeBasic
	}
	return Response{
		Status:   env.Status,
		Header:   env.Header,
		Body:     body,
		Type:     env.Type,
		StoredAt: env.StoredAt,
	}, nil
}

// encodeMetadata describes an entry for operators browsing the bucket.
func encodeMetadata(resp Response) map[string]string {
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	return map[string]string{
		statusMetaKey:    strconv.Itoa(resp.Status),
		typeMetaKey:      string(resp.Type),
		updatedAtMetaKey: strconv.FormatInt(storedAt.Unix(), 10),
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return false
}
