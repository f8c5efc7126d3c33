// Package dynamostore implements store.Store on Amazon DynamoDB, using the
// pk=call_hash, sk=kind layout spec.md §6 names explicitly for this
// backend, with ConditionExpression for compare-and-swap.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brrr-dev/brrr/store"
)

const (
	attrPK    = "pk"
	attrSK    = "sk"
	attrValue = "value"
)

// Config configures the DynamoDB-backed store.
type Config struct {
	Table  string
	Region string
}

func (c *Config) Validate() error {
	if c.Table == "" {
		return errors.New("dynamostore: table is required")
	}
	return nil
}

// API is the subset of the DynamoDB client this package drives; satisfied
// by *dynamodb.Client or any other implementation, such as a fake.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store is the DynamoDB-backed store.Store implementation.
type Store struct {
	api   API
	table string
}

// New builds a Store from the AWS default credential chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: load aws config: %w", err)
	}
	return NewWithClient(dynamodb.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient builds a Store around an already-configured API.
func NewWithClient(api API, cfg Config) *Store {
	return &Store{api: api, table: cfg.Table}
}

func itemKey(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key.CallHash},
		attrSK: &types.AttributeValueMemberS{Value: string(key.Kind)},
	}
}

func (s *Store) Has(ctx context.Context, key store.Key) (bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("dynamostore: has %s: %w", key, err)
	}
	return out.Item != nil, nil
}

func (s *Store) Get(ctx context.Context, key store.Key) ([]byte, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("dynamostore: get %s: %w", key, store.ErrNotFound)
	}
	var rec struct {
		Value []byte `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("dynamostore: get %s: decode item: %w", key, err)
	}
	return rec.Value, nil
}

func (s *Store) Set(ctx context.Context, key store.Key, value []byte) error {
	item := itemKey(key)
	item[attrValue] = &types.AttributeValueMemberB{Value: value}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamostore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: delete %s: %w", key, err)
	}
	return nil
}

// SetNewValue uses a ConditionExpression requiring the partition key to be
// absent.
func (s *Store) SetNewValue(ctx context.Context, key store.Key, value []byte) error {
	item := itemKey(key)
	item[attrValue] = &types.AttributeValueMemberB{Value: value}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("dynamostore: set new value %s: %w", key, store.ErrAlreadyExists)
		}
		return fmt.Errorf("dynamostore: set new value %s: %w", key, err)
	}
	return nil
}

// CompareAndSet uses a ConditionExpression requiring the current value to
// equal expected.
func (s *Store) CompareAndSet(ctx context.Context, key store.Key, newValue, expected []byte) error {
	item := itemKey(key)
	item[attrValue] = &types.AttributeValueMemberB{Value: newValue}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("#value = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#value": attrValue,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberB{Value: expected},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("dynamostore: compare-and-set %s: %w", key, store.ErrCompareMismatch)
		}
		return fmt.Errorf("dynamostore: compare-and-set %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete uses a ConditionExpression requiring the current value
// to equal expected.
func (s *Store) CompareAndDelete(ctx context.Context, key store.Key, expected []byte) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 itemKey(key),
		ConditionExpression: aws.String("#value = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#value": attrValue,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberB{Value: expected},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("dynamostore: compare-and-delete %s: %w", key, store.ErrCompareMismatch)
		}
		return fmt.Errorf("dynamostore: compare-and-delete %s: %w", key, err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ store.Store = (*Store)(nil)
