package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gehhilfe/orthrus/core"
)

// MaxBatchSize is the largest batch SaveEvents accepts. Every event takes
// three of the hundred items a transaction may hold.
const MaxBatchSize = 33

const maxTransactAttempts = 5

const (
	logHashKey     = "log"
	counterHashKey = "meta"
	counterAttr    = "position"
)

func revisionHashKey(aggregateID string) string {
	return "rev#" + aggregateID
}

func typeHashKey(aggregate string) string {
	return "type#" + aggregate
}

// record is stored three times per event: in the log, under its aggregate
// keyed by revision, and under its type keyed by position.
type record struct {
	HashKey     string    `dynamodbav:"pk"`
	RangeKey    int64     `dynamodbav:"sk"`
	Position    int64     `dynamodbav:"position"`
	AggregateID string    `dynamodbav:"aggregateId"`
	Aggregate   string    `dynamodbav:"aggregate"`
	CommitID    string    `dynamodbav:"commitId"`
	Revision    int64     `dynamodbav:"revision"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
	Payload     string    `dynamodbav:"payload"`
}

func (r record) event() core.Event {
	return core.Event{
		Position:    r.Position,
		AggregateID: r.AggregateID,
		Aggregate:   r.Aggregate,
		CommitID:    r.CommitID,
		Revision:    r.Revision,
		CreatedAt:   r.CreatedAt,
		Payload:     r.Payload,
	}
}

// Store keeps one stream in a single DynamoDB table. Positions come from an
// atomic counter; a batch that loses a race after reserving positions leaves
// a gap in the log.
type Store struct {
	svc   AdminAPI
	table string

	now func() time.Time
}

var _ core.Adapter = (*Store)(nil)

// NewStore makes sure table exists and returns a store on top of it.
func NewStore(ctx context.Context, svc AdminAPI, table string) (*Store, error) {
	if err := EnsureTable(ctx, svc, table); err != nil {
		return nil, err
	}
	return &Store{
		svc:   svc,
		table: table,
		now:   time.Now,
	}, nil
}

// Destroy releases nothing: the client holds no connection of its own. The
// table is left in place; use DeleteTable to remove it.
func (s *Store) Destroy(ctx context.Context) error {
	return nil
}

func (s *Store) GetAllEvents(ctx context.Context, fromPos int64, toPos core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromPos, toPos); err != nil {
		return nil, err
	}
	return s.queryRange(ctx, logHashKey, fromPos, toPos, true, 0)
}

func (s *Store) GetEventsByType(ctx context.Context, aggregate string, limit, offset int) ([]core.Event, error) {
	if err := core.ValidateTypeQuery(limit, offset); err != nil {
		return nil, err
	}

	events, err := s.queryRange(ctx, typeHashKey(aggregate), 1, core.Unbounded(), true, offset+limit)
	if err != nil {
		return nil, err
	}
	if offset >= len(events) {
		return make([]core.Event, 0), nil
	}
	return events[offset:], nil
}

func (s *Store) GetEventsByID(ctx context.Context, aggregateID string, fromRev int64, toRev core.Bound) ([]core.Event, error) {
	if err := core.ValidateRange(fromRev, toRev); err != nil {
		return nil, err
	}
	return s.queryRange(ctx, revisionHashKey(aggregateID), fromRev, toRev, true, 0)
}

// GetLastEvent returns the event with the highest revision of the aggregate.
func (s *Store) GetLastEvent(ctx context.Context, aggregateID string) (core.Event, bool, error) {
	events, err := s.queryRange(ctx, revisionHashKey(aggregateID), 1, core.Unbounded(), false, 1)
	if err != nil {
		return core.Event{}, false, err
	}
	if len(events) == 0 {
		return core.Event{}, false, nil
	}
	return events[0], true, nil
}

func (s *Store) SaveEvents(ctx context.Context, events []core.EventToSave) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > MaxBatchSize {
		return fmt.Errorf("%w: %d events, at most %d", ErrBatchTooLarge, len(events), MaxBatchSize)
	}

	if conflict, err := s.hasConflict(ctx, events); err != nil {
		return err
	} else if conflict {
		return core.NewUniqueConstraintError(events)
	}

	last, err := s.reservePositions(ctx, len(events))
	if err != nil {
		return err
	}
	first := last - int64(len(events)) + 1

	notExists, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(HashKey))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	createdAt := s.now().UTC()
	items := make([]types.TransactWriteItem, 0, 3*len(events))
	for i, e := range events {
		position := first + int64(i)
		base := record{
			Position:    position,
			AggregateID: e.AggregateID,
			Aggregate:   e.Aggregate,
			CommitID:    e.CommitID,
			Revision:    e.Revision,
			CreatedAt:   createdAt,
			Payload:     e.Payload,
		}

		for _, key := range []struct {
			hash  string
			rng   int64
			guard bool
		}{
			{logHashKey, position, false},
			{revisionHashKey(e.AggregateID), e.Revision, true},
			{typeHashKey(e.Aggregate), position, false},
		} {
			r := base
			r.HashKey, r.RangeKey = key.hash, key.rng
			item, err := attributevalue.MarshalMap(r)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			put := &types.Put{
				TableName: aws.String(s.table),
				Item:      item,
			}
			if key.guard {
				put.ConditionExpression = notExists.Condition()
				put.ExpressionAttributeNames = notExists.Names()
			}
			items = append(items, types.TransactWriteItem{Put: put})
		}
	}

	for attempt := 1; ; attempt++ {
		_, err = s.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if !isTransactionConflict(err) || attempt == maxTransactAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	if err != nil {
		if IsConditionCheckFailure(err) {
			return core.NewUniqueConstraintError(events)
		}
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}

// hasConflict looks for revisions that are taken already, or repeated within
// the batch, before any position gets reserved.
func (s *Store) hasConflict(ctx context.Context, events []core.EventToSave) (bool, error) {
	type key struct {
		aggregateID string
		revision    int64
	}
	seen := make(map[key]struct{}, len(events))
	keys := make([]map[string]types.AttributeValue, 0, len(events))
	for _, e := range events {
		k := key{e.AggregateID, e.Revision}
		if _, dup := seen[k]; dup {
			return true, nil
		}
		seen[k] = struct{}{}
		keys = append(keys, map[string]types.AttributeValue{
			HashKey:  &types.AttributeValueMemberS{Value: revisionHashKey(e.AggregateID)},
			RangeKey: &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Revision, 10)},
		})
	}

	out, err := s.svc.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			s.table: {
				Keys:                 keys,
				ConsistentRead:       aws.Bool(true),
				ProjectionExpression: aws.String(HashKey),
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check revisions: %w", err)
	}
	// unprocessed keys are left to the transaction conditions
	return len(out.Responses[s.table]) > 0, nil
}

func (s *Store) reservePositions(ctx context.Context, n int) (int64, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name(counterAttr), expression.Value(n))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}

	out, err := s.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			HashKey:  &types.AttributeValueMemberS{Value: counterHashKey},
			RangeKey: &types.AttributeValueMemberN{Value: "0"},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve positions: %w", err)
	}

	var counter struct {
		Position int64 `dynamodbav:"position"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("failed to read position counter: %w", err)
	}
	if counter.Position < int64(n) {
		return 0, errors.New("position counter out of range")
	}
	return counter.Position, nil
}

// queryRange reads the items under hash with a range key in [from, to]. A
// positive max stops reading once that many items are collected.
func (s *Store) queryRange(ctx context.Context, hash string, from int64, to core.Bound, ascending bool, max int) ([]core.Event, error) {
	keyCond := expression.Key(HashKey).Equal(expression.Value(hash))
	if limit, ok := to.Value(); ok {
		keyCond = keyCond.And(expression.Key(RangeKey).Between(expression.Value(from), expression.Value(limit)))
	} else {
		keyCond = keyCond.And(expression.Key(RangeKey).GreaterThanEqual(expression.Value(from)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
		ScanIndexForward:          aws.Bool(ascending),
	}
	if max > 0 {
		input.Limit = aws.Int32(int32(max))
	}

	out := make([]core.Event, 0)
	p := dynamodb.NewQueryPaginator(s.svc, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", hash, err)
		}
		records := []record{}
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
		for _, r := range records {
			out = append(out, r.event())
			if max > 0 && len(out) == max {
				return out, nil
			}
		}
	}
	return out, nil
}
