package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/crypto"
	"github.com/jun/voznota/internal/model"
)

// NoteTable stores transcription notes. Transcript text is sealed with the
// Encryptor before it is written and opened after it is read.
type NoteTable struct {
	client     DynamoAPI
	tableName  string
	ownerIndex string
	encryptor  crypto.Encryptor
	now        func() time.Time

	// In-memory fallback
	mu    sync.RWMutex
	notes map[string]model.Note
}

// NewNoteTable returns a NoteTable. A nil client selects the in-memory fallback.
// ownerIndex is the GSI keyed on user_id used by ListByOwner.
func NewNoteTable(client DynamoAPI, tableName, ownerIndex string, encryptor crypto.Encryptor) *NoteTable {
	return &NoteTable{
		client:     client,
		tableName:  tableName,
		ownerIndex: ownerIndex,
		encryptor:  encryptor,
		now:        time.Now,
		notes:      make(map[string]model.Note),
	}
}

// Save persists a new note owned by ownerID and returns it with the
// store-assigned id, revision and creation time.
func (t *NoteTable) Save(ctx context.Context, ownerID, title, text, audioFormat string, audioSize int64) (*model.Note, error) {
	note := model.Note{
		ID:          uuid.NewString(),
		Rev:         newRevision(1),
		UserID:      ownerID,
		Title:       title,
		Text:        text,
		CreatedAt:   t.now().UTC(),
		AudioFormat: audioFormat,
		AudioSize:   audioSize,
	}

	sealed, err := t.encryptor.Encrypt(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt transcript: %w", err)
	}
	stored := note
	stored.Text = sealed

	if t.client == nil {
		t.mu.Lock()
		t.notes[note.ID] = stored
		t.mu.Unlock()
		return &note, nil
	}

	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal note: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, upstream("save note", err)
	}
	return &note, nil
}

// Get returns the note with the given id or apperr.ErrNotFound.
func (t *NoteTable) Get(ctx context.Context, id string) (*model.Note, error) {
	var stored model.Note

	if t.client == nil {
		t.mu.RLock()
		n, ok := t.notes[id]
		t.mu.RUnlock()
		if !ok {
			return nil, apperr.ErrNotFound
		}
		stored = n
	} else {
		out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(t.tableName),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: id},
			},
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, upstream("get note", err)
		}
		if out.Item == nil {
			return nil, apperr.ErrNotFound
		}
		if err := attributevalue.UnmarshalMap(out.Item, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal note: %w", err)
		}
	}

	return t.open(ctx, stored)
}

// ListByOwner returns up to limit notes owned by ownerID. Order is whatever
// the index returns; callers must not rely on it. limit must be at least 1.
func (t *NoteTable) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Note, error) {
	if limit < 1 {
		return nil, apperr.Invalid("limit must be a positive integer")
	}
	limit = min(limit, math.MaxInt32)

	var stored []model.Note

	if t.client == nil {
		t.mu.RLock()
		for _, n := range t.notes {
			if n.UserID == ownerID {
				stored = append(stored, n)
			}
			if len(stored) == limit {
				break
			}
		}
		t.mu.RUnlock()
	} else {
		out, err := t.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(t.tableName),
			IndexName:              aws.String(t.ownerIndex),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: ownerID},
			},
			Limit: aws.Int32(int32(limit)),
		})
		if err != nil {
			return nil, upstream("list notes", err)
		}
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}

	notes := make([]model.Note, 0, len(stored))
	for _, n := range stored {
		opened, err := t.open(ctx, n)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *opened)
	}
	return notes, nil
}

// Delete removes the note if rev is its current revision. It returns
// apperr.ErrNotFound if the note does not exist and apperr.ErrConflict if
// rev is stale; in both cases nothing is modified. Ownership is checked by
// the caller.
func (t *NoteTable) Delete(ctx context.Context, id, rev string) error {
	if t.client == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		n, ok := t.notes[id]
		if !ok {
			return apperr.ErrNotFound
		}
		if n.Rev != rev {
			return apperr.ErrConflict
		}
		delete(t.notes, id)
		return nil
	}

	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: aws.String("attribute_exists(id) AND #rev = :rev"),
		ExpressionAttributeNames: map[string]string{
			"#rev": "rev",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rev": &types.AttributeValueMemberS{Value: rev},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		if len(old) == 0 {
			return apperr.ErrNotFound
		}
		return apperr.ErrConflict
	}
	if err != nil {
		return upstream("delete note", err)
	}
	return nil
}

func (t *NoteTable) open(ctx context.Context, n model.Note) (*model.Note, error) {
	text, err := t.encryptor.Decrypt(ctx, n.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt transcript %s: %w", n.ID, err)
	}
	n.Text = text
	return &n, nil
}
