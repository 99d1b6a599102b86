// Package artifact provides a Tencent Cloud Object Storage ProcessorContract
// node for large binary outputs (compiled movies, raw audio) that must not be
// embedded in a persisted JSON document: the node uploads the artifact and
// returns only its object name and size in bytes.
//
// Grounded on artifact/tcos/service.go's Service/NewService/SaveArtifact
// shape, trimmed to the one-directional upload this pipeline needs.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/hirak99/video-summarizer/flow"
	"github.com/hirak99/video-summarizer/log"
)

const defaultTimeout = 60 * time.Second

// Upload is the value returned by Process.
type Upload struct {
	ObjectName string `json:"object_name"`
	Bytes      int    `json:"bytes"`
}

// Options configures the underlying COS client.
type Options struct {
	BucketURL string
	SecretID  string // falls back to TCOS_SECRETID if empty
	SecretKey string // falls back to TCOS_SECRETKEY if empty
	Timeout   time.Duration
}

type processor struct {
	flow.BaseProcessor
	client *cos.Client
}

// NewFactory returns a flow.ProcessorFactory for a node with required
// "object_name" (string) and "data" ([]byte) inputs.
func NewFactory(opts Options) flow.ProcessorFactory {
	return func() flow.Processor {
		secretID := opts.SecretID
		if secretID == "" {
			secretID = os.Getenv("TCOS_SECRETID")
		}
		secretKey := opts.SecretKey
		if secretKey == "" {
			secretKey = os.Getenv("TCOS_SECRETKEY")
		}
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}

		u, _ := url.Parse(opts.BucketURL)
		base := &cos.BaseURL{BucketURL: u}
		httpClient := &http.Client{
			Timeout: timeout,
			Transport: &cos.AuthorizationTransport{
				SecretID:  secretID,
				SecretKey: secretKey,
			},
		}

		return &processor{
			BaseProcessor: flow.BaseProcessor{
				ProcessorName: "ArtifactStore",
				Sig: flow.Signature{
					{Name: "object_name", Type: flow.StringType(), Required: true},
					{Name: "data", Type: flow.OfGoType([]byte{}), Required: true},
				},
			},
			client: cos.NewClient(base, httpClient),
		}
	}
}

func (p *processor) Process(args map[string]any) (any, error) {
	objectName := args["object_name"].(string)
	data := args["data"].([]byte)

	_, err := p.client.Object.Put(context.Background(), objectName, bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("upload artifact %s: %w", objectName, err)
	}

	log.Infof("Uploaded artifact %s (%d bytes)", objectName, len(data))
	return Upload{ObjectName: objectName, Bytes: len(data)}, nil
}
