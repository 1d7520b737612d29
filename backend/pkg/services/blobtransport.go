package services

import (
	"context"
	"io"
	"path"
	"sort"

	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// hashMetadataKey holds the content hash of every written object, so a sync
// only lists the bucket instead of reading it.
const hashMetadataKey = "sha256"

var repositoryContentTypes = map[string]string{
	".cer": "application/pkix-cert",
	".crl": "application/pkix-crl",
	".mft": "application/rpki-manifest",
	".roa": "application/rpki-roa",
}

// BlobPublicationTransport mirrors the active objects into a bucket laid out
// like the repository. Anything else found in the bucket is removed.
type BlobPublicationTransport struct {
	logger *logrus.Entry
	bucket *blob.Bucket
	layout RepositoryLayout
}

func NewBlobPublicationTransport(logger *logrus.Entry, bucket *blob.Bucket, layout RepositoryLayout) *BlobPublicationTransport {
	return &BlobPublicationTransport{logger: logger, bucket: bucket, layout: layout}
}

func (t *BlobPublicationTransport) PublishAll(ctx context.Context, objects []models.PublishedObject) (*services.PublishAllOutput, error) {
	lFunc := chelpers.ConfigureLogger(ctx, t.logger)

	desired := map[string]models.PublishedObject{}
	for _, obj := range objects {
		if !obj.Status.IsActive() {
			continue
		}
		key := t.layout.RelativePath(obj.URI)
		if prev, ok := desired[key]; ok && prev.ID > obj.ID {
			continue
		}
		desired[key] = obj
	}

	existing := map[string]string{}
	iter := t.bucket.List(nil)
	for {
		item, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			lFunc.Errorf("could not list repository bucket: %s", err)
			return nil, err
		}
		if item.IsDir {
			continue
		}

		attrs, err := t.bucket.Attributes(ctx, item.Key)
		if err != nil {
			return nil, err
		}
		existing[item.Key] = attrs.Metadata[hashMetadataKey]
	}

	keys := make([]string, 0, len(desired))
	for key := range desired {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := &services.PublishAllOutput{Written: []string{}, Removed: []string{}, Unchanged: []string{}}
	for _, key := range keys {
		obj := desired[key]
		if hash, ok := existing[key]; ok && hash == obj.ContentHash {
			out.Unchanged = append(out.Unchanged, obj.URI)
			continue
		}

		err := t.bucket.WriteAll(ctx, key, obj.Content, &blob.WriterOptions{
			ContentType: contentTypeOf(key),
			Metadata:    map[string]string{hashMetadataKey: obj.ContentHash},
		})
		if err != nil {
			lFunc.Errorf("could not write %s: %s", key, err)
			return nil, err
		}
		lFunc.Debugf("wrote %s", key)
		out.Written = append(out.Written, obj.URI)
	}

	stale := []string{}
	for key := range existing {
		if _, ok := desired[key]; !ok {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	for _, key := range stale {
		if err := t.bucket.Delete(ctx, key); err != nil {
			lFunc.Errorf("could not remove %s: %s", key, err)
			return nil, err
		}
		lFunc.Debugf("removed %s", key)
		out.Removed = append(out.Removed, t.layout.base()+key)
	}

	return out, nil
}

func contentTypeOf(key string) string {
	if ct, ok := repositoryContentTypes[path.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}
