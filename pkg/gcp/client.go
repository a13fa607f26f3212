package gcp

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client wraps all GCP service clients
type Client struct {
	ProjectID       string
	FirestoreClient *firestore.Client
	PubSubClient    *pubsub.Client
	StorageClient   *storage.Client

	logger      *zap.Logger
	knownTopics sync.Map
}

// NewClient creates a new GCP client with all necessary services
func NewClient(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	firestoreClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		firestoreClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	return &Client{
		ProjectID:       projectID,
		FirestoreClient: firestoreClient,
		PubSubClient:    pubsubClient,
		StorageClient:   storageClient,
		logger:          logger,
	}, nil
}

// Close closes all GCP clients
func (c *Client) Close() error {
	var errs []error

	if err := c.FirestoreClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Firestore client: %w", err))
	}

	if err := c.PubSubClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Pub/Sub client: %w", err))
	}

	if err := c.StorageClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Storage client: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing clients: %v", errs)
	}

	return nil
}

// IsNotFound reports whether err is a gRPC NotFound from a Google API.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsAlreadyExists reports whether err is a gRPC AlreadyExists from a Google API.
func IsAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// IsTransient reports whether a gRPC error is worth retrying.
func IsTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return true
	}
	return false
}

// StoreDocument stores a document in Firestore, overwriting any existing one
func (c *Client) StoreDocument(ctx context.Context, collection, docID string, data interface{}) error {
	_, err := c.FirestoreClient.Collection(collection).Doc(docID).Set(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// CreateDocument stores a document that must not already exist
func (c *Client) CreateDocument(ctx context.Context, collection, docID string, data interface{}) error {
	_, err := c.FirestoreClient.Collection(collection).Doc(docID).Create(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// ReplaceDocument overwrites a document that must already exist. A missing
// document yields a NotFound error.
func (c *Client) ReplaceDocument(ctx context.Context, collection, docID string, data interface{}) error {
	ref := c.FirestoreClient.Collection(collection).Doc(docID)
	err := c.FirestoreClient.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, data)
	})
	if err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document from Firestore. Use IsNotFound on the error to detect a missing document.
func (c *Client) GetDocument(ctx context.Context, collection, docID string, dest interface{}) error {
	doc, err := c.FirestoreClient.Collection(collection).Doc(docID).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := doc.DataTo(dest); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return nil
}

// PublishMessage publishes a message to a Pub/Sub topic, creating the topic on first use
func (c *Client) PublishMessage(ctx context.Context, topicName string, data []byte, attributes map[string]string) error {
	topic := c.PubSubClient.Topic(topicName)

	if _, known := c.knownTopics.Load(topicName); !known {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check topic existence: %w", err)
		}

		if !exists {
			c.logger.Info("creating Pub/Sub topic", zap.String("topic", topicName))
			if _, err = c.PubSubClient.CreateTopic(ctx, topicName); err != nil && !IsAlreadyExists(err) {
				return fmt.Errorf("failed to create topic: %w", err)
			}
		}
		c.knownTopics.Store(topicName, struct{}{})
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	}

	result := topic.Publish(ctx, msg)

	// Wait for publish to complete
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// SubscribeToTopic receives messages from an existing subscription until ctx ends
func (c *Client) SubscribeToTopic(ctx context.Context, subscriptionName string, callback func(ctx context.Context, msg *pubsub.Message)) error {
	sub := c.PubSubClient.Subscription(subscriptionName)

	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription existence: %w", err)
	}

	if !exists {
		return fmt.Errorf("subscription %s does not exist", subscriptionName)
	}

	// Campaign runs are long; keep the number in flight small.
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	if err := sub.Receive(ctx, callback); err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	return nil
}

// UploadObject writes data to bucket/object and returns its public URL.
func (c *Client) UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) (string, error) {
	w := c.StorageClient.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object), nil
}
