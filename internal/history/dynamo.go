// Package history persists finished run reports to DynamoDB so past batch
// runs can be inspected after their logs have rotated.
//
// Items use a single-table layout: PK is "RUN#<yyyy-mm-dd>" (UTC date of the
// run start) and SK is the run ID, so one Query returns a day's runs.
package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/order"
)

const (
	pkPrefix   = "RUN#"
	dateLayout = "2006-01-02"

	// DefaultTTL is how long a run stays in the table.
	DefaultTTL = 30 * 24 * time.Hour
)

// Store records and lists run reports.
type Store interface {
	PutRun(ctx context.Context, report order.RunReport) error
	ListRuns(ctx context.Context, day time.Time) ([]order.RunReport, error)
}

// dynamoAPI is the subset of *dynamodb.Client used here.
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements Store on a DynamoDB table with PK/SK string keys
// and an expiresAt TTL attribute.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore. A zero ttl uses DefaultTTL.
func NewDynamoStore(client *dynamodb.Client, tableName string, ttl time.Duration) *DynamoStore {
	return newDynamoStore(client, tableName, ttl)
}

func newDynamoStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

// runPK returns the partition key for runs started on day.
func runPK(day time.Time) string {
	return pkPrefix + day.UTC().Format(dateLayout)
}

// runRecord is the stored shape. Fields use their JSON names so the item
// reads the same as the HTTP response. Key attributes are added by PutRun.
type runRecord struct {
	order.RunReport
	RecordedAt string `json:"recordedAt"`
}

// PutRun writes report keyed by its start date and run ID.
func (s *DynamoStore) PutRun(ctx context.Context, report order.RunReport) error {
	if report.RunID == "" {
		return fmt.Errorf("run report has no run ID")
	}
	item, err := attributevalue.MarshalMapWithOptions(runRecord{
		RunReport:  report,
		RecordedAt: s.now().UTC().Format(time.RFC3339),
	}, func(o *attributevalue.EncoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := runPK(report.Timestamp)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: report.RunID}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, report.RunID, err)
	}
	log.Debug().Str("runId", report.RunID).Str("pk", pk).Msg("Run report stored")
	return nil
}

// ListRuns returns every stored run that started on day (UTC), following
// Query pagination.
func (s *DynamoStore) ListRuns(ctx context.Context, day time.Time) ([]order.RunReport, error) {
	pk := runPK(day)
	var reports []order.RunReport
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		for _, item := range out.Items {
			var rec runRecord
			if err := attributevalue.UnmarshalMapWithOptions(item, &rec, func(o *attributevalue.DecoderOptions) {
				o.TagKey = "json"
			}); err != nil {
				return nil, fmt.Errorf("unmarshal PK=%s: %w", pk, err)
			}
			reports = append(reports, rec.RunReport)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return reports, nil
}
