package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"genai-chatbot/internal/domain"
)

const (
	pkPrefixUser = "USER#"
	skPrefixTurn = "TURN#"

	// Fixed width so lexical SK order matches chronological order.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// DynamoDBAPI is the minimal DynamoDB interface required by DynamoClient.
// Defined here for testability.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoClient stores chat turns in a single DynamoDB table, one item per turn,
// partitioned by user.
type DynamoClient struct {
	api       DynamoDBAPI
	tableName string
}

// NewDynamoClient creates a DynamoClient for the given table.
func NewDynamoClient(api DynamoDBAPI, tableName string) (*DynamoClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoClient{api: api, tableName: tableName}, nil
}

func userPK(userID string) string {
	return pkPrefixUser + userID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(skTimeLayout)
}

// Ping checks that the table exists and is reachable.
func (c *DynamoClient) Ping(ctx context.Context) error {
	out, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		return fmt.Errorf("repository: Ping describe table: %w", err)
	}
	if out == nil || out.Table == nil {
		return fmt.Errorf("repository: Ping: table %q not described", c.tableName)
	}
	return nil
}

// GetHistory returns every turn for userID in chronological order.
func (c *DynamoClient) GetHistory(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ProjectionExpression: aws.String("#r, message"),
		ExpressionAttributeNames: map[string]string{
			"#r": "role",
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var msgs []domain.ChatMessage
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToChatMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return msgs, nil
}

// AppendTurn writes one turn item. Existing items are never overwritten.
func (c *DynamoClient) AppendTurn(ctx context.Context, turn domain.Turn) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(turn.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: turnSK(turn.Timestamp)},
		"user_id":   &types.AttributeValueMemberS{Value: turn.UserID},
		"role":      &types.AttributeValueMemberS{Value: turn.Role},
		"message":   &types.AttributeValueMemberS{Value: turn.Message},
		"timestamp": &types.AttributeValueMemberS{Value: turn.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToChatMessage(item map[string]types.AttributeValue) (domain.ChatMessage, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	message, err := strAttr(item, "message")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{Role: role, Content: message}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
