package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

type MockDynamoDB struct {
	mock.Mock
}

func (m *MockDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func attrS(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrN(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}

func TestPutShape_Success(t *testing.T) {
	mockDB := new(MockDynamoDB)
	repo := NewDynamoShapeRepository(mockDB, "shapes")
	repo.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	spec := domain.ShapeSpec{
		Type:     domain.ShapeTypeRect,
		Geometry: domain.DefaultGeometry,
		Fills:    []domain.FillSpec{{FillOpacity: 1, FillImage: domain.MediaRef{ID: "m1"}}},
	}

	mockDB.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return *in.TableName == "shapes" &&
			attrS(in.Item, "document_id") == "doc" &&
			attrS(in.Item, "shape_id") == "s1" &&
			attrS(in.Item, "type") == "rect" &&
			attrN(in.Item, "x") == "100" &&
			attrN(in.Item, "width") == "600" &&
			attrS(in.Item, "created_at") == "2024-01-02T03:04:05Z" &&
			attrS(in.Item, "fills") == `[{"fill_opacity":1,"fill_image":{"id":"m1"}}]`
	}), mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

	err := repo.PutShape(context.Background(), "doc", "s1", spec)
	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
}

func TestPutShape_Error(t *testing.T) {
	mockDB := new(MockDynamoDB)
	repo := NewDynamoShapeRepository(mockDB, "shapes")
	mockDB.On("PutItem", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dynamo error"))

	err := repo.PutShape(context.Background(), "doc", "s1", domain.ShapeSpec{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to put shape s1")
}
