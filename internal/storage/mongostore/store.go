// Package mongostore provides a MongoDB-backed implementation of storage.Store.
//
// Units of work run as multi-document transactions, so the server must be a
// replica set or a sharded cluster.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on two collections, memberships and
// ledger_entries.
type Store struct {
	client      *mongo.Client
	memberships *mongo.Collection
	entries     *mongo.Collection
}

// Connect dials uri, checks the connection, and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := New(client, client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// New creates a Store over db. The client is used to start sessions.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:      client,
		memberships: db.Collection("memberships"),
		entries:     db.Collection("ledger_entries"),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.memberships.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_a", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_memberships_member_a"),
		},
		{
			Keys:    bson.D{{Key: "member_b", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_memberships_member_b"),
		},
	})
	if err != nil {
		return err
	}

	_, err = s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "membership_id", Value: 1}},
			Options: options.Index().SetName("idx_entries_membership"),
		},
		// Duplicate settlement lookup
		{
			Keys: bson.D{
				{Key: "membership_id", Value: 1},
				{Key: "owner_id", Value: 1},
				{Key: "category", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_entries_settlement"),
		},
	})
	return err
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// WithinTx runs fn in a snapshot transaction. The driver retries fn on
// transient errors such as write conflicts, so fn may run more than once.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{store: s})
	}, opts)
	return err
}

type membershipDoc struct {
	ID        string    `bson:"_id"`
	MemberA   string    `bson:"member_a"`
	MemberB   string    `bson:"member_b"`
	CreatedBy string    `bson:"created_by"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	// SettleSeq is bumped by every settlement so that two concurrent
	// settlements on one membership conflict on this document.
	SettleSeq int64 `bson:"settle_seq"`
}

func (d *membershipDoc) model() *models.Membership {
	return &models.Membership{
		ID:        d.ID,
		MemberA:   d.MemberA,
		MemberB:   d.MemberB,
		CreatedBy: d.CreatedBy,
		Status:    models.MembershipStatus(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type entryDoc struct {
	ID           string    `bson:"_id"`
	MembershipID string    `bson:"membership_id"`
	OwnerID      string    `bson:"owner_id"`
	Amount       string    `bson:"amount"` // canonical decimal string
	Kind         string    `bson:"kind"`
	Category     string    `bson:"category"`
	Note         string    `bson:"note,omitempty"`
	Date         time.Time `bson:"date"`
	CreatedAt    time.Time `bson:"created_at"`
}

func newEntryDoc(e *models.LedgerEntry) entryDoc {
	return entryDoc{
		ID:           e.ID,
		MembershipID: e.MembershipID,
		OwnerID:      e.OwnerID,
		Amount:       e.Amount.String(),
		Kind:         string(e.Kind),
		Category:     e.Category,
		Note:         e.Note,
		Date:         e.Date,
		CreatedAt:    e.CreatedAt,
	}
}

func (d *entryDoc) model() (*models.LedgerEntry, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("entry %s has invalid amount %q: %w", d.ID, d.Amount, err)
	}
	return &models.LedgerEntry{
		ID:           d.ID,
		MembershipID: d.MembershipID,
		OwnerID:      d.OwnerID,
		Amount:       amount,
		Kind:         models.EntryKind(d.Kind),
		Category:     d.Category,
		Note:         d.Note,
		Date:         d.Date.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	_, err := s.memberships.InsertOne(ctx, membershipDoc{
		ID:        m.ID,
		MemberA:   m.MemberA,
		MemberB:   m.MemberB,
		CreatedBy: m.CreatedBy,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	return getMembership(ctx, s.memberships, membershipID)
}

func getMembership(ctx context.Context, c *mongo.Collection, membershipID string) (*models.Membership, error) {
	var doc membershipDoc
	err := c.FindOne(ctx, bson.M{"_id": membershipID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("membership %s: %w", membershipID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return doc.model(), nil
}

func between(userA, userB string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"member_a": userA, "member_b": userB},
		bson.M{"member_a": userB, "member_b": userA},
	}}
}

func (s *Store) FindMembershipBetween(ctx context.Context, userA, userB string) (*models.Membership, error) {
	filter := between(userA, userB)
	filter["status"] = bson.M{"$ne": string(models.StatusRejected)}

	var doc membershipDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := s.memberships.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return doc.model(), nil
}

func (s *Store) ListMembershipsByMember(ctx context.Context, userID string) ([]*models.Membership, error) {
	filter := bson.M{"$or": bson.A{bson.M{"member_a": userID}, bson.M{"member_b": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.memberships.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer cur.Close(ctx)

	var docs []membershipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	result := make([]*models.Membership, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].model())
	}
	return result, nil
}

func (s *Store) SetMembershipStatus(ctx context.Context, membershipID string, from, to models.MembershipStatus) error {
	res, err := s.memberships.UpdateOne(ctx,
		bson.M{"_id": membershipID, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update membership status: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	if _, err := s.GetMembership(ctx, membershipID); err != nil {
		return err
	}
	return storage.ErrStatusConflict
}

func (s *Store) AddEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if _, err := s.GetMembership(ctx, entry.MembershipID); err != nil {
		return err
	}
	return insertEntry(ctx, s.entries, entry)
}

func insertEntry(ctx context.Context, c *mongo.Collection, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Date.IsZero() {
		entry.Date = entry.CreatedAt
	}
	if _, err := c.InsertOne(ctx, newEntryDoc(entry)); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	var doc entryDoc
	err := s.entries.FindOne(ctx, bson.M{"_id": entryID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return doc.model()
}

func (s *Store) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, s.entries, membershipID)
}

func listEntries(ctx context.Context, c *mongo.Collection, membershipID string) ([]*models.LedgerEntry, error) {
	cur, err := c.Find(ctx, bson.M{"membership_id": membershipID})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer cur.Close(ctx)

	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	result := make([]*models.LedgerEntry, 0, len(docs))
	for i := range docs {
		e, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": entry.ID},
		bson.M{"$set": bson.M{
			"amount":   entry.Amount.String(),
			"kind":     string(entry.Kind),
			"category": entry.Category,
			"note":     entry.Note,
			"date":     entry.Date,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("entry %s: %w", entry.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	res, err := s.entries.DeleteOne(ctx, bson.M{"_id": entryID})
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	return nil
}

// mongoTx runs its operations on the session context passed to fn.
type mongoTx struct {
	store *Store
}

func (t *mongoTx) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	return getMembership(ctx, t.store.memberships, membershipID)
}

func (t *mongoTx) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, t.store.entries, membershipID)
}

func (t *mongoTx) FindRecentSettlement(ctx context.Context, membershipID, payerID string, amount decimal.Decimal, since time.Time) (*models.LedgerEntry, error) {
	filter := bson.M{
		"membership_id": membershipID,
		"owner_id":      payerID,
		"category":      models.CategorySettlement,
		"kind":          string(models.KindDebit),
		"amount":        amount.String(),
		"created_at":    bson.M{"$gte": since},
	}
	var doc entryDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := t.store.entries.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up recent settlement: %w", err)
	}
	return doc.model()
}

func (t *mongoTx) AppendEntries(ctx context.Context, entries [2]*models.LedgerEntry) error {
	membershipID := entries[0].MembershipID
	res, err := t.store.memberships.UpdateOne(ctx,
		bson.M{"_id": membershipID},
		bson.M{"$inc": bson.M{"settle_seq": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to lock membership: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("membership %s: %w", membershipID, storage.ErrNotFound)
	}

	for _, entry := range entries {
		if err := insertEntry(ctx, t.store.entries, entry); err != nil {
			return err
		}
	}
	return nil
}
