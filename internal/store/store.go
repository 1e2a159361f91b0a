// Package store persists users and transcription notes in DynamoDB.
//
// Each table type falls back to an in-process map when it is constructed
// with a nil client. The fallback keeps the same semantics (revision checks,
// email uniqueness) and is what the tests and DEV_MODE without LocalStack use.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jun/voznota/internal/apperr"
)

const serviceName = "dynamodb"

// DynamoAPI is the subset of *dynamodb.Client used by the tables.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// newRevision returns a revision token in the "<generation>-<random>" form.
func newRevision(generation int) string {
	return fmt.Sprintf("%d-%s", generation, uuid.NewString())
}

// conditionFailed reports whether err is a failed ConditionExpression and,
// if so, returns the old item DynamoDB attached to it (may be nil).
func conditionFailed(err error) (map[string]types.AttributeValue, bool) {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ccf.Item, true
	}
	return nil, false
}

// transactionConditionFailed reports whether a TransactWriteItems call was
// cancelled because the condition on item idx failed.
func transactionConditionFailed(err error, idx int) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	if idx >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[idx].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w", op, apperr.Upstream(serviceName, err))
}
