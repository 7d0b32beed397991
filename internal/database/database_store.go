package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBStore keeps contacts in MongoDB. Persons are cached for reads.
type DBStore struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
	persons          *expirable.LRU[int64, *Person]
}

type counter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

func wrapError(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", ipc.ErrNoData, what)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: unique key conflicts on %s: %v", ipc.ErrDatabase, what, err)
	}
	return fmt.Errorf("%w: %s: %v", ipc.ErrDatabase, what, err)
}

func (ds *DBStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ds.operationTimeout)
}

func (ds *DBStore) next(ctx context.Context, name string) (int64, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var c counter
	err := ds.db.Collection(CounterCollectionName).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, wrapError(err, "counter "+name)
	}
	return c.Seq, nil
}

func (ds *DBStore) NextVersion(ctx context.Context) (int64, error) {
	return ds.next(ctx, versionCounter)
}

func (ds *DBStore) CurrentVersion(ctx context.Context) (int64, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var c counter
	err := ds.db.Collection(CounterCollectionName).FindOne(ctx, bson.D{{Key: "_id", Value: versionCounter}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError(err, "counter "+versionCounter)
	}
	return c.Seq, nil
}

func (ds *DBStore) InsertPerson(ctx context.Context, p *Person) (int64, error) {
	if p == nil {
		return 0, ipc.ErrInvalidParameter
	}
	id, err := ds.next(ctx, personCounter)
	if err != nil {
		return 0, err
	}
	stored := *p
	stored.ID = id

	ctx, cancel := ds.opContext(ctx)
	defer cancel()
	if _, err := ds.db.Collection(PersonCollectionName).InsertOne(ctx, &stored); err != nil {
		return 0, wrapError(err, "insert person")
	}
	ds.persons.Add(id, &stored)
	return id, nil
}

func (ds *DBStore) UpdatePerson(ctx context.Context, p *Person) error {
	if p == nil {
		return ipc.ErrInvalidParameter
	}
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	result, err := ds.db.Collection(PersonCollectionName).ReplaceOne(ctx, bson.D{{Key: "_id", Value: p.ID}}, p)
	if err != nil {
		return wrapError(err, "update person")
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: person %d", ipc.ErrNoData, p.ID)
	}
	ds.persons.Remove(p.ID)
	return nil
}

func (ds *DBStore) DeletePerson(ctx context.Context, id int64) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	ds.persons.Remove(id)
	result, err := ds.db.Collection(PersonCollectionName).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return wrapError(err, "delete person")
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: person %d", ipc.ErrNoData, id)
	}
	members, err := ds.db.Collection(GroupMemberCollectionName).DeleteMany(ctx, bson.D{{Key: "person_id", Value: id}})
	if err != nil {
		return wrapError(err, "delete group members")
	}
	logger.DebugF("Person %d deleted with %d group memberships", id, members.DeletedCount)
	return nil
}

func (ds *DBStore) GetPerson(ctx context.Context, id int64) (*Person, error) {
	if p, ok := ds.persons.Get(id); ok {
		c := *p
		return &c, nil
	}
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	var p Person
	startTime := time.Now()
	err := ds.db.Collection(PersonCollectionName).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p)
	logger.DebugF("person query cost: %v", time.Since(startTime))
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("person %d", id))
	}
	cached := p
	ds.persons.Add(id, &cached)
	return &p, nil
}

func (ds *DBStore) AddGroupMember(ctx context.Context, groupID, personID int64) error {
	if _, err := ds.GetPerson(ctx, personID); err != nil {
		return err
	}
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	member := GroupMember{GroupID: groupID, PersonID: personID}
	filter := bson.D{{Key: "group_id", Value: groupID}, {Key: "person_id", Value: personID}}
	_, err := ds.db.Collection(GroupMemberCollectionName).ReplaceOne(ctx, filter, member, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapError(err, "add group member")
	}
	return nil
}

func (ds *DBStore) RemoveGroupMember(ctx context.Context, groupID, personID int64) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	filter := bson.D{{Key: "group_id", Value: groupID}, {Key: "person_id", Value: personID}}
	result, err := ds.db.Collection(GroupMemberCollectionName).DeleteOne(ctx, filter)
	if err != nil {
		return wrapError(err, "remove group member")
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: person %d not in group %d", ipc.ErrNoData, personID, groupID)
	}
	return nil
}

func (ds *DBStore) InsertPhoneLog(ctx context.Context, l *PhoneLog) (int64, error) {
	if l == nil {
		return 0, ipc.ErrInvalidParameter
	}
	id, err := ds.next(ctx, phoneLogCounter)
	if err != nil {
		return 0, err
	}
	stored := *l
	stored.ID = id

	ctx, cancel := ds.opContext(ctx)
	defer cancel()
	if _, err := ds.db.Collection(PhoneLogCollectionName).InsertOne(ctx, &stored); err != nil {
		return 0, wrapError(err, "insert phone log")
	}
	return id, nil
}

func (ds *DBStore) DeletePhoneLog(ctx context.Context, id int64) error {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	result, err := ds.db.Collection(PhoneLogCollectionName).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return wrapError(err, "delete phone log")
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: phone log %d", ipc.ErrNoData, id)
	}
	return nil
}

func (ds *DBStore) AppendChanges(ctx context.Context, changes ...ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	docs := make([]interface{}, len(changes))
	for i := range changes {
		docs[i] = changes[i]
	}
	if _, err := ds.db.Collection(ChangeCollectionName).InsertMany(ctx, docs); err != nil {
		return wrapError(err, "append changes")
	}
	return nil
}

func (ds *DBStore) ChangesSince(ctx context.Context, topic ipc.Topic, version int64) ([]ChangeRecord, error) {
	ctx, cancel := ds.opContext(ctx)
	defer cancel()

	filter := bson.D{
		{Key: "topic", Value: topic},
		{Key: "version", Value: bson.D{{Key: "$gt", Value: version}}},
	}
	cursor, err := ds.db.Collection(ChangeCollectionName).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, wrapError(err, "query changes")
	}
	var out []ChangeRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, wrapError(err, "decode changes")
	}
	return out, nil
}

// Invoke closes the database connection on shutdown.
func (ds *DBStore) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := ds.opContext(ctx)
	defer cancel()
	ds.persons.Purge()
	return ds.client.Disconnect(ctx)
}
