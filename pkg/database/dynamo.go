package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

type DynamoClient struct {
	svc    *dynamodb.Client
	logger *slog.Logger
}

var _ store.Store = (*DynamoClient)(nil)

const (
	deviceTable  = "Devices"
	userTable    = "Users"
	historyTable = "DeviceHistory"

	defaultRegion = "us-west-2"
)

type tableSpec struct {
	name     string
	hashKey  string
	rangeKey string
}

var tables = []tableSpec{
	{name: deviceTable, hashKey: "ID"},
	{name: userTable, hashKey: "ID"},
	{name: historyTable, hashKey: "DeviceID", rangeKey: "ID"},
}

// NewDynamoStore configures a DynamoDB-backed store. A non-empty endpoint
// points the client at DynamoDB Local with static dummy credentials;
// an empty one uses the default AWS credential chain.
func NewDynamoStore(ctx context.Context, endpoint string) (store.Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load SDK configuration: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	svc := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	c := &DynamoClient{svc: svc, logger: slog.Default().With("store", "dynamodb")}
	for _, t := range tables {
		if err := c.ensureTableExists(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to ensure table %s exists: %w", t.name, err)
		}
	}
	return c, nil
}

// ensureTableExists checks for and creates the required table.
func (c *DynamoClient) ensureTableExists(ctx context.Context, t tableSpec) error {
	_, err := c.svc.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
	if err == nil {
		c.logger.Debug("table already exists", "table", t.name)
		return nil
	}

	c.logger.Info("creating table", "table", t.name)
	attrs := []types.AttributeDefinition{{
		AttributeName: aws.String(t.hashKey),
		AttributeType: types.ScalarAttributeTypeS,
	}}
	keys := []types.KeySchemaElement{{
		AttributeName: aws.String(t.hashKey),
		KeyType:       types.KeyTypeHash,
	}}
	if t.rangeKey != "" {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(t.rangeKey),
			AttributeType: types.ScalarAttributeTypeS,
		})
		keys = append(keys, types.KeySchemaElement{
			AttributeName: aws.String(t.rangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}

	_, err = c.svc.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(t.name),
		AttributeDefinitions: attrs,
		KeySchema:            keys,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.svc)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)}, time.Minute); err != nil {
		return fmt.Errorf("waiting for table: %w", err)
	}
	return nil
}

// Close is implemented to satisfy the Store interface.
// The AWS SDK client doesn't need explicit closing.
func (c *DynamoClient) Close() error {
	return nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ID": &types.AttributeValueMemberS{Value: id},
	}
}

func (c *DynamoClient) putItem(ctx context.Context, table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put into %s failed: %w", table, err)
	}
	return nil
}

func (c *DynamoClient) getItem(ctx context.Context, table, id string, out any) error {
	result, err := c.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("dynamodb get from %s failed: %w", table, err)
	}
	if result.Item == nil {
		return fmt.Errorf("%s %s: %w", table, id, store.ErrNotFound)
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

// scan pages through a whole table, optionally filtered.
func (c *DynamoClient) scan(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(c.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan failed: %w", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (c *DynamoClient) deleteItem(ctx context.Context, table, id string) error {
	_, err := c.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(table),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(ID)"),
	})
	if err != nil {
		return translateConditionErr(table, id, err)
	}
	return nil
}

func translateConditionErr(table, id string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s %s: %w", table, id, store.ErrNotFound)
	}
	return fmt.Errorf("dynamodb write to %s failed for ID %s: %w", table, id, err)
}

// PutDevice stores a Device item in the table.
func (c *DynamoClient) PutDevice(ctx context.Context, device model.Device) error {
	return c.putItem(ctx, deviceTable, device)
}

// GetDevice retrieves a Device item by its ID.
func (c *DynamoClient) GetDevice(ctx context.Context, deviceID string) (model.Device, error) {
	var device model.Device
	if err := c.getItem(ctx, deviceTable, deviceID, &device); err != nil {
		return model.Device{}, err
	}
	return device, nil
}

// ListDevices retrieves all device items, ordered by creation time.
func (c *DynamoClient) ListDevices(ctx context.Context) ([]model.Device, error) {
	items, err := c.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(deviceTable),
		Select:    types.SelectAllAttributes,
	})
	if err != nil {
		return nil, err
	}

	var devices []model.Device
	if err := attributevalue.UnmarshalListOfMaps(items, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].CreatedAt.Before(devices[j].CreatedAt)
	})
	return devices, nil
}

// UpdateDevice applies a partial update. Nil values remove the attribute.
func (c *DynamoClient) UpdateDevice(ctx context.Context, deviceID string, updates map[string]any) (model.Device, error) {
	if len(updates) == 0 {
		return model.Device{}, fmt.Errorf("no update parameters provided for device ID %s", deviceID)
	}

	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var setParts, removeParts []string
	attributeNames := map[string]string{}
	attributeValues := map[string]types.AttributeValue{}

	for i, key := range keys {
		namePlaceholder := fmt.Sprintf("#a%d", i)
		attributeNames[namePlaceholder] = key

		value := updates[key]
		if isNilValue(value) {
			removeParts = append(removeParts, namePlaceholder)
			continue
		}

		av, err := attributevalue.Marshal(value)
		if err != nil {
			return model.Device{}, fmt.Errorf("failed to marshal update value for %s: %w", key, err)
		}
		valuePlaceholder := fmt.Sprintf(":v%d", i)
		setParts = append(setParts, fmt.Sprintf("%s = %s", namePlaceholder, valuePlaceholder))
		attributeValues[valuePlaceholder] = av
	}

	var expr []string
	if len(setParts) > 0 {
		expr = append(expr, "SET "+strings.Join(setParts, ", "))
	}
	if len(removeParts) > 0 {
		expr = append(expr, "REMOVE "+strings.Join(removeParts, ", "))
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(deviceTable),
		Key:                      idKey(deviceID),
		UpdateExpression:         aws.String(strings.Join(expr, " ")),
		ConditionExpression:      aws.String("attribute_exists(ID)"),
		ExpressionAttributeNames: attributeNames,
		ReturnValues:             types.ReturnValueAllNew,
	}
	if len(attributeValues) > 0 {
		input.ExpressionAttributeValues = attributeValues
	}

	out, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		return model.Device{}, translateConditionErr(deviceTable, deviceID, err)
	}

	var device model.Device
	if err := attributevalue.UnmarshalMap(out.Attributes, &device); err != nil {
		return model.Device{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return device, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	if t, ok := v.(*time.Time); ok && t == nil {
		return true
	}
	return false
}

func (c *DynamoClient) DeleteDevice(ctx context.Context, deviceID string) error {
	return c.deleteItem(ctx, deviceTable, deviceID)
}

func (c *DynamoClient) PutUser(ctx context.Context, user model.User) error {
	return c.putItem(ctx, userTable, user)
}

func (c *DynamoClient) GetUser(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	if err := c.getItem(ctx, userTable, userID, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *DynamoClient) findUser(ctx context.Context, attr, value string) (model.User, error) {
	items, err := c.scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(userTable),
		FilterExpression:          aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
	})
	if err != nil {
		return model.User{}, err
	}
	if len(items) == 0 {
		return model.User{}, fmt.Errorf("user %s: %w", value, store.ErrNotFound)
	}
	var user model.User
	if err := attributevalue.UnmarshalMap(items[0], &user); err != nil {
		return model.User{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return user, nil
}

func (c *DynamoClient) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return c.findUser(ctx, "Username", username)
}

func (c *DynamoClient) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return c.findUser(ctx, "Email", email)
}

func (c *DynamoClient) ListUsers(ctx context.Context) ([]model.User, error) {
	items, err := c.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(userTable)})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := attributevalue.UnmarshalListOfMaps(items, &users); err != nil {
		return nil, fmt.Errorf("failed to unmarshal users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].JoinDate < users[j].JoinDate })
	return users, nil
}

func (c *DynamoClient) UpdateUser(ctx context.Context, userID string, patch model.UserPatch) (model.User, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	patch.Apply(&user)
	if err := c.PutUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *DynamoClient) DeleteUser(ctx context.Context, userID string) error {
	return c.deleteItem(ctx, userTable, userID)
}

func (c *DynamoClient) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	return c.putItem(ctx, historyTable, entry)
}

// ListHistory queries one device's partition and returns it newest first.
func (c *DynamoClient) ListHistory(ctx context.Context, deviceID string) ([]model.HistoryEntry, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(c.svc, &dynamodb.QueryInput{
		TableName:              aws.String(historyTable),
		KeyConditionExpression: aws.String("DeviceID = :d"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberS{Value: deviceID},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query failed: %w", err)
		}
		items = append(items, page.Items...)
	}

	var entries []model.HistoryEntry
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	sortHistory(entries)
	return entries, nil
}
