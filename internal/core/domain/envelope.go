package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const blobKeyDateLayout = "2006-01-02"

// QueueMessage is a leased message returned by the queue transport
type QueueMessage struct {
	ID            string
	ReceiptHandle string
	Body          string
	ReceiveCount  int
	SentAt        time.Time
}

// NotarizationEnvelope is the unit of work flowing through the notarization queue
type NotarizationEnvelope struct {
	QueueMessageID string
	ReceiptHandle  string
	Bucket         string
	BlobKey        string
	EnqueuedAt     time.Time
}

// S3Notification mirrors the blob store native notification shape
type S3Notification struct {
	Records []S3Record `json:"Records"`
}

// S3Record of a notification
type S3Record struct {
	S3 S3Entity `json:"s3"`
}

// S3Entity of a notification record
type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

// S3Bucket reference
type S3Bucket struct {
	Name string `json:"name"`
}

// S3Object reference
type S3Object struct {
	Key string `json:"key"`
}

// NewS3Notification builds the notification for a single bucket/key pair
func NewS3Notification(bucket, key string) S3Notification {
	return S3Notification{Records: []S3Record{{S3: S3Entity{Bucket: S3Bucket{Name: bucket}, Object: S3Object{Key: key}}}}}
}

// Marshal encodes the notification as a queue message body
func (n S3Notification) Marshal() (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EnvelopesFromMessage parses a queue message into notarization envelopes.
// S3 url encodes object keys in native notifications, so keys are unescaped.
func EnvelopesFromMessage(msg QueueMessage) ([]NotarizationEnvelope, error) {
	var n S3Notification
	if err := json.Unmarshal([]byte(msg.Body), &n); err != nil {
		return nil, NewDocumentError("invalid queue message", err)
	}
	if len(n.Records) == 0 {
		return nil, NewDocumentError("invalid queue message", errors.New("no records"))
	}
	envs := make([]NotarizationEnvelope, 0, len(n.Records))
	for _, r := range n.Records {
		if r.S3.Object.Key == "" {
			return nil, NewDocumentError("invalid queue message", errors.New("empty object key"))
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			key = r.S3.Object.Key
		}
		envs = append(envs, NotarizationEnvelope{
			QueueMessageID: msg.ID,
			ReceiptHandle:  msg.ReceiptHandle,
			Bucket:         r.S3.Bucket.Name,
			BlobKey:        key,
			EnqueuedAt:     msg.SentAt,
		})
	}
	return envs, nil
}

// PendingBlobKey returns the {date}/{logicalId}.json layout of unprocessed documents
func PendingBlobKey(at time.Time, logicalID string) string {
	return fmt.Sprintf("%s/%s.json", at.UTC().Format(blobKeyDateLayout), logicalID)
}
