package dynamo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
)

func genTableName(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func TestDynamoStore(t *testing.T) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}

	svc, err := NewClient(context.Background(), ClientOptions{
		Region:          "eu-west-1",
		Endpoint:        endpoint,
		AccessKeyID:     "TEST",
		SecretAccessKey: "TEST",
	})
	if err != nil {
		t.Fatal(err)
	}

	newStore := func(t *testing.T) *Store {
		table := genTableName("tmp-events")
		s, err := NewStore(context.Background(), svc, table)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := DeleteTable(context.Background(), svc, table); err != nil {
				t.Error(err)
			}
		})
		return s
	}

	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		return newStore(t)
	})

	t.Run("BatchTooLarge", func(t *testing.T) {
		s := newStore(t)

		batch := make([]core.EventToSave, MaxBatchSize+1)
		for i := range batch {
			batch[i] = core.EventToSave{AggregateID: "big", Aggregate: "product", CommitID: "c", Revision: int64(i + 1), Payload: "{}"}
		}
		if err := s.SaveEvents(context.Background(), batch); !errors.Is(err, ErrBatchTooLarge) {
			t.Fatalf("expected ErrBatchTooLarge, got %v", err)
		}
	})
}

func TestIsConditionCheckFailure(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unrelated", errors.New("throttled"), false},
		{"single write", fmt.Errorf("put: %w", &types.ConditionalCheckFailedException{}), true},
		{"cancelled transaction", fmt.Errorf("transact: %w", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		}), true},
		{"cancelled for another reason", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ThrottlingError")},
				{Code: nil},
			},
		}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConditionCheckFailure(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsTransactionConflict(t *testing.T) {
	conflict := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("TransactionConflict")}},
	}
	if !isTransactionConflict(conflict) {
		t.Error("expected a transaction conflict")
	}
	mixed := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("TransactionConflict")}},
	}
	if isTransactionConflict(mixed) {
		t.Error("expected a failed condition to win over a conflict")
	}
	if isTransactionConflict(errors.New("boom")) {
		t.Error("expected unrelated errors not to match")
	}
}
