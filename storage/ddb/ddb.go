/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/sequencer"
	"github.com/recallkit/recallkit/storage"
)

// Store is a DynamoDB terminal backend. All classes share one table;
// each class maps its identity into the partition/sort keys through a
// macro template like "USER#{ID}".
type Store struct {
	client *sdk.Client
	table  string

	mu      sync.RWMutex
	keymaps map[string]map[string]string
	seq     sequencer.Sequencer
}

const (
	attrClass   = "RKClass"
	classMarker = "_class"
)

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// NewClient initializes a DynamoDB client using static AWS credentials.
func NewClient(ctx context.Context, accessKey, secretKey, region string) (*sdk.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return sdk.NewFromConfig(cfg), nil
}

// New constructs a Store over an existing client and table.
func New(client *sdk.Client, table string) *Store {
	return &Store{
		client:  client,
		table:   table,
		keymaps: make(map[string]map[string]string),
		seq:     sequencer.NewUUID(),
	}
}

// NewFromConfig constructs a Store from string configuration. Keys:
// "access_key", "secret_key", "region", "table".
func NewFromConfig(ctx context.Context, cfg storage.Config) (*Store, error) {
	client, err := NewClient(ctx,
		cfg.Get("access_key", ""),
		cfg.Get("secret_key", ""),
		cfg.Get("region", "us-east-1"),
	)
	if err != nil {
		return nil, err
	}
	table := cfg.Get("table", "")
	if table == "" {
		return nil, fmt.Errorf("ddb: no table configured")
	}
	return New(client, table), nil
}

// SetIndexMap overrides the key templates for a class. Templates expand
// "{Field}" macros against the record's encoded values. The default for
// a class User identified by ID is PK = SK = "USER#{ID}".
func (s *Store) SetIndexMap(class string, indexMap map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keymaps[class] = indexMap
}

func (s *Store) indexMap(cls *record.Class) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.keymaps[cls.Name()]; ok {
		return m
	}
	parts := make([]string, 0, len(cls.Identifiers())+1)
	parts = append(parts, strings.ToUpper(cls.Name()))
	for _, id := range cls.Identifiers() {
		parts = append(parts, "{"+id+"}")
	}
	tpl := strings.Join(parts, "#")
	return map[string]string{"PK": tpl, "SK": tpl}
}

// Register prepares the store to handle cls. The shared table needs no
// per-class setup until CreateStorage.
func (s *Store) Register(cls *record.Class) error { return nil }

// expandMacros substitutes "{Field}" macros in each key template with
// the record's encoded field values.
func expandMacros(indexMap map[string]string, wire map[string]any) map[string]string {
	res := make(map[string]string, len(indexMap))
	for keyAttr, template := range indexMap {
		res[keyAttr] = macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
			name := strings.Trim(macro, "{}")
			v, ok := wire[name]
			if !ok || v == nil {
				return ""
			}
			return fmt.Sprintf("%v", v)
		})
	}
	return res
}

func (s *Store) keyFor(rec *record.Record) (map[string]types.AttributeValue, error) {
	wire, err := record.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	expanded := expandMacros(s.indexMap(rec.Class()), wire)
	pk, sk := expanded["PK"], expanded["SK"]
	if pk == "" || sk == "" {
		return nil, fmt.Errorf("ddb: expanded index map missing valid PK or SK for %s", rec)
	}
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}, nil
}

// Reserve allocates an identity when the record lacks one and stores
// its initial state. The UUID strategy needs no coordination with
// concurrent writers, which suits a remote shared table.
func (s *Store) Reserve(ctx context.Context, rec *record.Record) error {
	cls := rec.Class()
	if cls.HasIdentifiers() && !rec.HasIdentity() {
		if err := s.seq.Assign(rec, nil); err != nil {
			return err
		}
	}
	return s.ForceSave(ctx, rec)
}

// Save persists a dirty record's field values and cleanses it.
func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	if !rec.Dirty() {
		return nil
	}
	return s.ForceSave(ctx, rec)
}

// ForceSave persists the record's state regardless of dirtiness.
func (s *Store) ForceSave(ctx context.Context, rec *record.Record) error {
	wire, err := record.EncodeRecord(rec)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(wire)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	av[attrClass] = &types.AttributeValueMemberS{Value: rec.Class().Name()}

	if rec.Class().HasIdentifiers() {
		key, err := s.keyFor(rec)
		if err != nil {
			return err
		}
		for k, v := range key {
			av[k] = v
		}
	} else {
		// Log-like classes get a synthetic row key.
		rowKey := strings.ToUpper(rec.Class().Name()) + "#" + uuid.NewString()
		av["PK"] = &types.AttributeValueMemberS{Value: rowKey}
		av["SK"] = &types.AttributeValueMemberS{Value: rowKey}
	}

	if _, err := s.client.PutItem(ctx, &sdk.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("PutItem failed: %w", err)
	}
	rec.Cleanse()
	return nil
}

// Destroy removes the stored item for the record's identity.
func (s *Store) Destroy(ctx context.Context, rec *record.Record) error {
	key, err := s.keyFor(rec)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	}); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Recall scans the class's items. Nodes the filter compiler can express
// run natively inside the scan; the full expression is re-applied
// locally whenever the native filter was imperfect.
func (s *Store) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	filter, names, values, exact := compileFilter(cls, e)

	cond := "#class = :class"
	if names == nil {
		names = make(map[string]string)
	}
	if values == nil {
		values = make(map[string]types.AttributeValue)
	}
	names["#class"] = attrClass
	values[":class"] = &types.AttributeValueMemberS{Value: cls.Name()}
	if filter != "" {
		cond += " AND " + filter
	}

	var recs []*record.Record
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &sdk.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("Scan error: %w", err)
		}
		for _, item := range out.Items {
			rec, err := s.decodeItem(cls, item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	if exact {
		return recs, nil
	}
	return storage.FilterLocal(recs, e)
}

func (s *Store) decodeItem(cls *record.Class, item map[string]types.AttributeValue) (*record.Record, error) {
	var wire map[string]any
	if err := attributevalue.UnmarshalMap(item, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	delete(wire, "PK")
	delete(wire, "SK")
	delete(wire, attrClass)
	for name := range wire {
		if cls.Field(name) == nil {
			delete(wire, name)
		}
	}
	return record.DecodeRecord(cls, wire)
}

// Distinct projects distinct value tuples from matching records.
func (s *Store) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	recs, err := s.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	return storage.DistinctRows(recs, fields), nil
}

// MultiRecall joins classes with the nested-loop fallback; DynamoDB has
// no native join.
func (s *Store) MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	return storage.NestedJoin(ctx, s, classes, e)
}

func markerKey(cls *record.Class) map[string]types.AttributeValue {
	k := classMarker + "#" + cls.Name()
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: k},
		"SK": &types.AttributeValueMemberS{Value: k},
	}
}

// CreateStorage writes (or reconciles) the class marker item recording
// which fields the table stores for cls. A marker missing model fields
// is a conflict; repair extends the marker.
func (s *Store) CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	h := storage.Handler(conflicts)

	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName: aws.String(s.table),
		Key:       markerKey(cls),
	})
	if err != nil {
		return fmt.Errorf("GetItem error: %w", err)
	}

	stored := make(map[string]string)
	if out.Item != nil {
		var marker struct {
			Fields map[string]string `dynamodbav:"Fields"`
		}
		if err := attributevalue.UnmarshalMap(out.Item, &marker); err != nil {
			return fmt.Errorf("failed to unmarshal class marker: %w", err)
		}
		stored = marker.Fields
		for _, f := range cls.Fields() {
			have, ok := stored[f.Name]
			switch {
			case !ok && h.Repairable():
				stored[f.Name] = string(f.Type)
			case !ok:
				if err := h.Conflict(cls.Name(), fmt.Sprintf("no storage for property %q", f.Name)); err != nil {
					return err
				}
			case have != string(f.Type):
				if err := h.Conflict(cls.Name(), fmt.Sprintf("property %q is stored as %s, model wants %s",
					f.Name, have, f.Type)); err != nil {
					return err
				}
			}
		}
		if !h.Repairable() {
			return nil
		}
	} else {
		for _, f := range cls.Fields() {
			stored[f.Name] = string(f.Type)
		}
	}

	fieldsAV, err := attributevalue.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal class marker: %w", err)
	}
	item := markerKey(cls)
	item["Fields"] = fieldsAV
	if _, err := s.client.PutItem(ctx, &sdk.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem failed: %w", err)
	}
	return nil
}

// HasStorage reports whether the class marker item exists.
func (s *Store) HasStorage(ctx context.Context, cls *record.Class) (bool, error) {
	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName: aws.String(s.table),
		Key:       markerKey(cls),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem error: %w", err)
	}
	return out.Item != nil, nil
}

// DropStorage deletes the class marker and every item of the class.
func (s *Store) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	ok, err := s.HasStorage(ctx, cls)
	if err != nil {
		return err
	}
	if !ok {
		if err := storage.Handler(conflicts).Conflict(cls.Name(), "no storage to drop"); err != nil {
			return err
		}
	}

	recs, err := s.Recall(ctx, cls, nil)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.Destroy(ctx, rec); err != nil {
			return err
		}
	}
	if _, err := s.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       markerKey(cls),
	}); err != nil {
		return fmt.Errorf("failed to delete class marker: %w", err)
	}
	return nil
}

// Shutdown releases nothing; the SDK client carries no resources that
// need explicit teardown.
func (s *Store) Shutdown(ctx context.Context) error { return nil }
