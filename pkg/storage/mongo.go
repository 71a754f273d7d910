package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mickybart/uptimed/pkg/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoService, mongoDowntime, mongoSLA and mongoInstance are the BSON
// shapes of the uptime collections.
type mongoService struct {
	ID           string `bson:"_id"`
	Kind         string `bson:"kind"`
	Category     string `bson:"category"`
	Namespace    string `bson:"ns,omitempty"`
	Description  string `bson:"description"`
	Status       int    `bson:"status"`
	StatusPublic *int   `bson:"status_public,omitempty"`
}

type mongoDowntime struct {
	ID            string         `bson:"_id"`
	ServiceID     string         `bson:"_id_uptime"`
	DownStartDate int64          `bson:"down_start_date"`
	DownEndDate   int64          `bson:"down_end_date"`
	Extra         map[string]any `bson:"extra,omitempty"`
}

type mongoSLA struct {
	ServiceID string  `bson:"_id_uptime"`
	Date      int64   `bson:"date"`
	SLA       float64 `bson:"sla"`
}

type mongoWatermark struct {
	State string `bson:"state"`
	Next  int64  `bson:"next"`
}

type mongoInstance struct {
	ID   string `bson:"_id"`
	Date int64  `bson:"date"`
}

// MongoStore implements Store against a MongoDB deployment, selected by
// storage.backend: MongoStorage in the configuration.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	mu      sync.Mutex
	idCache map[string]string
}

// NewMongoStore connects to uri and ensures required indexes exist on db.
func NewMongoStore(ctx context.Context, uri, db string, timeout time.Duration) (*MongoStore, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, err
	}

	s := &MongoStore{client: client, db: client.Database(db), idCache: make(map[string]string)}
	if err := s.ensureIndexes(connectCtx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	services := s.db.Collection("uptime")
	if _, err := services.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "ns", Value: 1}}},
	}); err != nil {
		return err
	}

	history := s.db.Collection("uptime_history")
	if _, err := history.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "_id_uptime", Value: 1}}}); err != nil {
		return err
	}

	for _, name := range []string{"daily_uptime", "weekly_uptime", "monthly_uptime"} {
		col := s.db.Collection(name)
		if _, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "_id_uptime", Value: 1}}},
			{Keys: bson.D{{Key: "date", Value: 1}}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) Ready(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary()) == nil
}

func (s *MongoStore) cachedID(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idCache[key]
	return id, ok
}

func (s *MongoStore) cacheID(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCache[key] = id
}

func (s *MongoStore) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idCache, key)
}

func (s *MongoStore) resolveID(ctx context.Context, svc service.Service) (string, bool) {
	key := serviceKey(svc)
	if id, ok := s.cachedID(key); ok {
		return id, true
	}

	services := s.db.Collection("uptime")
	var result mongoService
	filter := bson.M{"kind": string(svc.Kind())}
	switch v := svc.(type) {
	case *service.HTTPIngress:
		filter["ns"] = v.Namespace
		filter["description"] = v.String()
	default:
		filter["description"] = svc.String()
	}
	err := services.FindOne(ctx, filter).Decode(&result)
	if err != nil {
		return "", false
	}
	s.cacheID(key, result.ID)
	return result.ID, true
}

func (s *MongoStore) openDowntime(ctx context.Context, serviceID string) (*mongoDowntime, error) {
	history := s.db.Collection("uptime_history")
	var dt mongoDowntime
	err := history.FindOne(ctx, bson.M{"_id_uptime": serviceID, "down_end_date": 0}).Decode(&dt)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

// UpdateStatus mirrors the BoltStore protocol described in package doc,
// expressed with Mongo inserts and updates instead of JSON buckets.
func (s *MongoStore) UpdateStatus(ctx context.Context, svc service.Service, status service.Status, extra map[string]any) bool {
	now := time.Now().Unix()
	services := s.db.Collection("uptime")
	history := s.db.Collection("uptime_history")
	key := serviceKey(svc)

	id, known := s.resolveID(ctx, svc)
	if !known {
		id = uuid.NewString()
		rec := mongoService{ID: id, Kind: string(svc.Kind()), Category: svc.Category(), Description: svc.String(), Status: int(service.OK)}
		if ing, ok := svc.(*service.HTTPIngress); ok {
			rec.Namespace = ing.Namespace
		}
		if _, err := services.InsertOne(ctx, rec); err != nil {
			return false
		}
		if status == service.FAIL {
			dt := mongoDowntime{ID: uuid.NewString(), ServiceID: id, DownStartDate: now, Extra: extra}
			if _, err := history.InsertOne(ctx, dt); err != nil {
				return false
			}
		}
		s.cacheID(key, id)
		return true
	}

	var rec mongoService
	if err := services.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		s.invalidate(key)
		return false
	}

	openDT, err := s.openDowntime(ctx, id)
	if err != nil {
		return false
	}

	reported := int(status)
	switch {
	case rec.Status == reported:
		if status == service.OK && openDT != nil {
			_, err = history.UpdateOne(ctx, bson.M{"_id": openDT.ID}, bson.M{"$set": bson.M{"down_end_date": now}})
		}
		if status == service.FAIL && openDT == nil {
			_, err = history.InsertOne(ctx, mongoDowntime{ID: uuid.NewString(), ServiceID: id, DownStartDate: now, Extra: extra})
		}
	default:
		_, err = services.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": reported}})
		if err == nil {
			if status == service.FAIL && openDT == nil {
				_, err = history.InsertOne(ctx, mongoDowntime{ID: uuid.NewString(), ServiceID: id, DownStartDate: now, Extra: extra})
			}
			if status == service.OK && openDT != nil {
				_, err = history.UpdateOne(ctx, bson.M{"_id": openDT.ID}, bson.M{"$set": bson.M{"down_end_date": now}})
			}
		}
	}
	return err == nil
}

func (s *MongoStore) AllServices(ctx context.Context, filter ServiceFilter) ([]ServiceRecord, error) {
	q := bson.M{}
	if filter.Category != "" {
		q["category"] = filter.Category
	}
	if filter.Kind != "" {
		q["kind"] = string(filter.Kind)
	}

	cur, err := s.db.Collection("uptime").Find(ctx, q)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []ServiceRecord
	for cur.Next(ctx) {
		var rec mongoService
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		sr := ServiceRecord{ID: rec.ID, Kind: service.Kind(rec.Kind), Category: rec.Category, Namespace: rec.Namespace, Description: rec.Description, Status: service.Status(rec.Status)}
		if rec.StatusPublic != nil {
			st := service.Status(*rec.StatusPublic)
			sr.StatusPublic = &st
		}
		out = append(out, sr)
	}
	return out, cur.Err()
}

func (s *MongoStore) SetStatusPublic(ctx context.Context, serviceID string, status service.Status) error {
	services := s.db.Collection("uptime")
	var rec mongoService
	if err := services.FindOne(ctx, bson.M{"_id": serviceID}).Decode(&rec); err != nil {
		return err
	}
	val := int(status)
	if rec.StatusPublic != nil && *rec.StatusPublic == val {
		return nil
	}
	_, err := services.UpdateOne(ctx, bson.M{"_id": serviceID}, bson.M{"$set": bson.M{"status_public": val}})
	return err
}

func (s *MongoStore) OpenDowntime(ctx context.Context, serviceID string) (*DowntimeRecord, error) {
	dt, err := s.openDowntime(ctx, serviceID)
	if err != nil || dt == nil {
		return nil, err
	}
	rec := DowntimeRecord{ID: dt.ID, ServiceID: dt.ServiceID, DownStart: dt.DownStartDate, DownEnd: dt.DownEndDate, Extra: dt.Extra}
	return &rec, nil
}

func (s *MongoStore) FindDowntimes(ctx context.Context, serviceID string, start, duration int64) ([]DowntimeRecord, error) {
	end := start + duration
	q := bson.M{
		"_id_uptime":      serviceID,
		"down_start_date": bson.M{"$lt": end},
		"$or": []bson.M{
			{"down_end_date": 0},
			{"down_end_date": bson.M{"$gt": start}},
		},
	}
	cur, err := s.db.Collection("uptime_history").Find(ctx, q)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []DowntimeRecord
	for cur.Next(ctx) {
		var dt mongoDowntime
		if err := cur.Decode(&dt); err != nil {
			return nil, err
		}
		out = append(out, DowntimeRecord{ID: dt.ID, ServiceID: dt.ServiceID, DownStart: dt.DownStartDate, DownEnd: dt.DownEndDate, Extra: dt.Extra})
	}
	return out, cur.Err()
}

func (s *MongoStore) watermarkCollection() *mongo.Collection {
	return s.db.Collection("consolidation_state")
}

func (s *MongoStore) Watermark(ctx context.Context, kind PeriodKind) (int64, bool, error) {
	var wm mongoWatermark
	err := s.watermarkCollection().FindOne(ctx, bson.M{"state": string(kind)}).Decode(&wm)
	if err == mongo.ErrNoDocuments {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return wm.Next, true, nil
}

func (s *MongoStore) SetWatermark(ctx context.Context, kind PeriodKind, next int64) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.watermarkCollection().UpdateOne(ctx, bson.M{"state": string(kind)}, bson.M{"$set": bson.M{"next": next}}, opts)
	return err
}

func (s *MongoStore) slaCollection(kind PeriodKind) *mongo.Collection {
	switch kind {
	case Daily:
		return s.db.Collection("daily_uptime")
	case Weekly:
		return s.db.Collection("weekly_uptime")
	case Monthly:
		return s.db.Collection("monthly_uptime")
	}
	return nil
}

func (s *MongoStore) UpsertSLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64, sla float64) error {
	col := s.slaCollection(kind)
	opts := options.Update().SetUpsert(true)
	_, err := col.UpdateOne(ctx, bson.M{"_id_uptime": serviceID, "date": periodStart}, bson.M{"$set": bson.M{"sla": sla}}, opts)
	return err
}

func (s *MongoStore) SLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64) (float64, bool, error) {
	col := s.slaCollection(kind)
	var row mongoSLA
	err := col.FindOne(ctx, bson.M{"_id_uptime": serviceID, "date": periodStart}).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.SLA, true, nil
}

func (s *MongoStore) Heartbeat(ctx context.Context, olderThan time.Duration) (bool, error) {
	now := time.Now().Unix()
	threshold := now - int64(olderThan.Seconds())
	col := s.db.Collection("instance_state")

	var existing mongoInstance
	err := col.FindOne(ctx, bson.M{}).Decode(&existing)
	if err == mongo.ErrNoDocuments {
		if _, err := col.InsertOne(ctx, mongoInstance{ID: instanceKey, Date: now}); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// Another instance created the row first.
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	res, err := col.UpdateOne(ctx, bson.M{"_id": existing.ID, "date": bson.M{"$lte": threshold}}, bson.M{"$set": bson.M{"date": now}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
