package kinesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/storefront-cart/internal/domain/cart"
	"github.com/example/storefront-cart/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Origin marks change events produced by the relay rather than an API instance.
const Origin = "relay"

var ErrMissingKey = errors.New("snapshot record has no snapshot_key")

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format)
// from the snapshot table into a change event. Records for other aggregate
// types yield nil.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record. Writes
// become CartUpdated, removals become CartCleared.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	switch record.EventName {
	case "INSERT", "MODIFY":
		return convertWrite(record.Change)
	case "REMOVE":
		return convertRemove(record.Change)
	default:
		return nil, nil
	}
}

type snapshotImage struct {
	key           string
	aggregateType string
	version       int64
	state         string
	updatedAt     time.Time
}

func parseImage(image map[string]events.DynamoDBAttributeValue) (snapshotImage, error) {
	var img snapshotImage
	if image == nil {
		return img, fmt.Errorf("DynamoDB image is nil")
	}
	if v, ok := image["snapshot_key"]; ok {
		img.key = v.String()
	}
	if v, ok := image["aggregate_type"]; ok {
		img.aggregateType = v.String()
	}
	if v, ok := image["state"]; ok {
		img.state = v.String()
	}
	if v, ok := image["updated_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return img, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		img.updatedAt = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return img, fmt.Errorf("failed to parse version: %w", err)
		}
		img.version = version
	}
	if img.key == "" {
		return img, ErrMissingKey
	}
	return img, nil
}

func isCart(aggregateType string) bool {
	return aggregateType == "" || aggregateType == cart.AggregateType
}

func eventID(change events.DynamoDBStreamRecord) string {
	if change.SequenceNumber != "" {
		return change.SequenceNumber
	}
	return uuid.New().String()
}

func convertWrite(change events.DynamoDBStreamRecord) (*store.Event, error) {
	img, err := parseImage(change.NewImage)
	if err != nil {
		return nil, err
	}
	if !isCart(img.aggregateType) {
		return nil, nil
	}

	var state struct {
		ID string `json:"id"`
	}
	if img.state != "" {
		if err := json.Unmarshal([]byte(img.state), &state); err != nil {
			return nil, fmt.Errorf("failed to decode cart state of %s: %w", img.key, err)
		}
	}
	if img.updatedAt.IsZero() {
		img.updatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(cart.CartUpdated{
		Profile:   img.key,
		CartID:    state.ID,
		Version:   img.version,
		Origin:    Origin,
		UpdatedAt: img.updatedAt,
	})
	if err != nil {
		return nil, err
	}
	return &store.Event{
		ID:            eventID(change),
		AggregateID:   img.key,
		AggregateType: cart.AggregateType,
		EventType:     cart.EventCartUpdated,
		Data:          data,
		Timestamp:     img.updatedAt,
		Version:       img.version,
	}, nil
}

func convertRemove(change events.DynamoDBStreamRecord) (*store.Event, error) {
	image := change.OldImage
	if image == nil {
		image = change.Keys
	}
	img, err := parseImage(image)
	if err != nil {
		return nil, err
	}
	if !isCart(img.aggregateType) {
		return nil, nil
	}

	clearedAt := time.Now().UTC()
	if !change.ApproximateCreationDateTime.IsZero() {
		clearedAt = change.ApproximateCreationDateTime.UTC()
	}
	data, err := json.Marshal(cart.CartCleared{
		Profile:   img.key,
		Origin:    Origin,
		ClearedAt: clearedAt,
	})
	if err != nil {
		return nil, err
	}
	return &store.Event{
		ID:            eventID(change),
		AggregateID:   img.key,
		AggregateType: cart.AggregateType,
		EventType:     cart.EventCartCleared,
		Data:          data,
		Timestamp:     clearedAt,
		Version:       img.version,
	}, nil
}

// BatchConvertFromKinesisEvent converts all records from a Kinesis event.
// Returns successfully converted events and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*store.Event, []error) {
	var eventList []*store.Event
	var errs []error

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", record.EventID, err))
			continue
		}
		if event != nil {
			eventList = append(eventList, event)
		}
	}

	return eventList, errs
}
