package data

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultTelemetryDatabase   = "ceilometer"
	defaultTelemetryCollection = "resource"
	defaultTelemetryTimeout    = 10 * time.Second
)

// ceilometer 写入的时间格式
var sampleTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
}

// NewMongo 连接 ceilometer 计量存储
func NewMongo(c *conf.Bootstrap, logger log.Logger) (*mongo.Client, func(), error) {
	if c.Data == nil || c.Data.Telemetry == nil || c.Data.Telemetry.Uri == "" {
		return nil, nil, fmt.Errorf("telemetry config is nil")
	}
	timeout := c.Data.Telemetry.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = defaultTelemetryTimeout
	}

	clientOpts := options.Client().
		ApplyURI(c.Data.Telemetry.Uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetAppName("project-billing-agent").
		SetRetryReads(true)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect telemetry store: %w", err)
	}

	cleanup := func() {
		log.NewHelper(logger).Info("closing the telemetry connection")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.NewHelper(logger).Errorf("failed to disconnect telemetry store: %v", err)
		}
	}
	return client, cleanup, nil
}

// telemetryFeed 从 ceilometer resource 集合读取项目与资源样本（只读）
type telemetryFeed struct {
	coll *mongo.Collection
	log  *log.Helper
}

// NewTelemetryFeed 创建遥测数据源
func NewTelemetryFeed(c *conf.Bootstrap, client *mongo.Client, logger log.Logger) biz.TelemetryFeed {
	database, collection := defaultTelemetryDatabase, defaultTelemetryCollection
	if t := c.Data.Telemetry; t != nil {
		if t.Database != "" {
			database = t.Database
		}
		if t.Collection != "" {
			collection = t.Collection
		}
	}
	return &telemetryFeed{
		coll: client.Database(database).Collection(collection),
		log:  log.NewHelper(logger),
	}
}

// ListProjects 有计量数据的项目
func (f *telemetryFeed) ListProjects(ctx context.Context) ([]string, error) {
	values, err := f.coll.Distinct(ctx, "project_id", bson.M{"project_id": bson.M{"$ne": nil}})
	if err != nil {
		return nil, err
	}
	projects := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			projects = append(projects, s)
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// ListResourceSamples 项目下每个资源的最近一次样本
func (f *telemetryFeed) ListResourceSamples(ctx context.Context, projectID string) ([]*biz.ResourceSample, error) {
	cursor, err := f.coll.Find(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var samples []*biz.ResourceSample
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		sample, err := toSample(doc)
		if err != nil {
			f.log.Warnf("skip malformed resource document: project=%s, error=%v", projectID, err)
			continue
		}
		samples = append(samples, sample)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// toSample 解析 ceilometer resource 文档
// vcpus / memory_mb / created_at 来自 metadata，采样时间取 timestamp（缺失时取 last_sample_timestamp）。
func toSample(doc bson.M) (*biz.ResourceSample, error) {
	sample := &biz.ResourceSample{
		ProjectID:  stringOf(doc["project_id"]),
		ResourceID: stringOf(doc["_id"]),
	}
	if id := stringOf(doc["resource_id"]); id != "" {
		sample.ResourceID = id
	}

	ts, ok := timeOf(doc["timestamp"])
	if !ok {
		ts, ok = timeOf(doc["last_sample_timestamp"])
	}
	if !ok {
		return nil, fmt.Errorf("resource %s has no sample timestamp", sample.ResourceID)
	}
	sample.Timestamp = ts

	metadata, _ := doc["metadata"].(bson.M)
	if metadata == nil {
		if d, ok := doc["metadata"].(bson.D); ok {
			metadata = d.Map()
		}
	}
	if metadata != nil {
		sample.VCPUs = intOf(metadata["vcpus"])
		sample.MemoryMB = intOf(metadata["memory_mb"])
		if created, ok := timeOf(metadata["created_at"]); ok {
			sample.CreatedAt = &created
		}
	}
	return sample, nil
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func intOf(v interface{}) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func timeOf(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	case string:
		for _, layout := range sampleTimeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
