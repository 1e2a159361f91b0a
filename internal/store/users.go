package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/model"
)

const (
	userKeyPrefix  = "USER#"
	emailKeyPrefix = "EMAIL#"
)

// userItem is the stored user row. The email claim row shares the table
// under an EMAIL# key and only points back at the user id.
type userItem struct {
	PK string `dynamodbav:"pk"`
	model.User
}

type emailClaim struct {
	PK     string `dynamodbav:"pk"`
	UserID string `dynamodbav:"user_id"`
}

// UserTable stores user accounts.
type UserTable struct {
	client    DynamoAPI
	tableName string

	// In-memory fallback
	mu     sync.RWMutex
	users  map[string]model.User
	emails map[string]string
}

// NewUserTable returns a UserTable. A nil client selects the in-memory fallback.
func NewUserTable(client DynamoAPI, tableName string) *UserTable {
	return &UserTable{
		client:    client,
		tableName: tableName,
		users:     make(map[string]model.User),
		emails:    make(map[string]string),
	}
}

// Create stores u. The user row and the email claim are written in one
// transaction, so two concurrent registrations of the same email cannot
// both succeed: the loser gets apperr.ErrDuplicateIdentity.
func (t *UserTable) Create(ctx context.Context, u model.User) error {
	if t.client == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, taken := t.emails[u.Email]; taken {
			return apperr.ErrDuplicateIdentity
		}
		t.users[u.ID] = u
		t.emails[u.Email] = u.ID
		return nil
	}

	userAV, err := attributevalue.MarshalMap(userItem{PK: userKeyPrefix + u.ID, User: u})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	claimAV, err := attributevalue.MarshalMap(emailClaim{PK: emailKeyPrefix + u.Email, UserID: u.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal email claim: %w", err)
	}

	_, err = t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(t.tableName),
				Item:                userAV,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(t.tableName),
				Item:                claimAV,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if transactionConditionFailed(err, 1) {
		return apperr.ErrDuplicateIdentity
	}
	if err != nil {
		return upstream("create user", err)
	}
	return nil
}

// GetByID returns the user with the given id or apperr.ErrNotFound.
func (t *UserTable) GetByID(ctx context.Context, id string) (*model.User, error) {
	if t.client == nil {
		t.mu.RLock()
		u, ok := t.users[id]
		t.mu.RUnlock()
		if !ok {
			return nil, apperr.ErrNotFound
		}
		return &u, nil
	}

	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userKeyPrefix + id},
		},
	})
	if err != nil {
		return nil, upstream("get user", err)
	}
	if out.Item == nil {
		return nil, apperr.ErrNotFound
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &item.User, nil
}

// GetByEmail resolves the email claim and returns its user or apperr.ErrNotFound.
func (t *UserTable) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if t.client == nil {
		t.mu.RLock()
		id, ok := t.emails[email]
		t.mu.RUnlock()
		if !ok {
			return nil, apperr.ErrNotFound
		}
		return t.GetByID(ctx, id)
	}

	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: emailKeyPrefix + email},
		},
	})
	if err != nil {
		return nil, upstream("get email claim", err)
	}
	if out.Item == nil {
		return nil, apperr.ErrNotFound
	}

	var claim emailClaim
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return nil, fmt.Errorf("failed to unmarshal email claim: %w", err)
	}
	return t.GetByID(ctx, claim.UserID)
}
