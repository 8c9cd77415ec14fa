// internal/app/store/snapshots/mirror.go
package snapshots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// Mirror is an optional S3 tier for the snapshot store. Several gateway
// nodes fronting the same origin can share one bucket: each node's puts
// replicate up, and a local miss during network-first fallback can be
// answered by a snapshot another node stored.
type Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

// NewMirror builds a Mirror using the default AWS credential chain.
func NewMirror(ctx context.Context, region, bucket, prefix string, logger *zap.Logger) (*Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("mirror bucket must not be empty")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Mirror{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		log:    logger,
	}, nil
}

// Put uploads an encoded snapshot for key in the named store.
func (m *Mirror) Put(ctx context.Context, name, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(name, key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put mirror object: %w", err)
	}
	return nil
}

// Get fetches the encoded snapshot for key. The second return is false
// when the object does not exist.
func (m *Mirror) Get(ctx context.Context, name, key string) ([]byte, bool, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(name, key)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get mirror object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read mirror object: %w", err)
	}
	return data, true, nil
}

// encodeSnapshot frames a snapshot as one JSON metadata line followed by
// the raw body bytes.
func encodeSnapshot(snap *Snapshot) []byte {
	meta, _ := json.Marshal(metaFile{
		Status:   snap.Status,
		Header:   snap.Header,
		StoredAt: snap.StoredAt.Unix(),
	})
	buf := make([]byte, 0, len(meta)+1+len(snap.Body))
	buf = append(buf, meta...)
	buf = append(buf, '\n')
	buf = append(buf, snap.Body...)
	return buf
}

// decodeSnapshot reverses encodeSnapshot.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, fmt.Errorf("mirrored snapshot missing metadata delimiter")
	}

	var meta metaFile
	if err := json.Unmarshal(data[:idx], &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mirrored metadata: %w", err)
	}

	body := make([]byte, len(data)-idx-1)
	copy(body, data[idx+1:])

	return &Snapshot{
		Status:   meta.Status,
		Header:   meta.Header,
		Body:     body,
		StoredAt: time.Unix(meta.StoredAt, 0),
	}, nil
}

func (m *Mirror) objectKey(name, key string) string {
	shard := key
	if len(key) >= 2 {
		shard = key[:2]
	}
	return path.Join(m.prefix, name, shard, key)
}
