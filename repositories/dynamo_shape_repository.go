package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoShapeRepository stores shapes of the s3 host backend, one item per shape.
type DynamoShapeRepository struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

func NewDynamoShapeRepository(client DynamoDBAPI, tableName string) *DynamoShapeRepository {
	return &DynamoShapeRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (d *DynamoShapeRepository) PutShape(ctx context.Context, documentID string, id domain.ShapeID, spec domain.ShapeSpec) error {
	fills, err := json.Marshal(spec.Fills)
	if err != nil {
		return fmt.Errorf("failed to marshal fills: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"document_id": &types.AttributeValueMemberS{Value: documentID},
			"shape_id":    &types.AttributeValueMemberS{Value: string(id)},
			"type":        &types.AttributeValueMemberS{Value: spec.Type},
			"x":           number(spec.Geometry.X),
			"y":           number(spec.Geometry.Y),
			"width":       number(spec.Geometry.Width),
			"height":      number(spec.Geometry.Height),
			"fills":       &types.AttributeValueMemberS{Value: string(fills)},
			"created_at":  &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(shape_id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put shape %s in DynamoDB: %w", id, err)
	}
	return nil
}

func number(v float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}
