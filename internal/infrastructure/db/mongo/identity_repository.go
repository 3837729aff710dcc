package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// Unique index names double as the field reported in a ConflictError.
var uniqueIndexField = map[string]string{
	"uniq_username":       "username",
	"uniq_external_id":    "external_id",
	"uniq_account_number": "account_number",
	"uniq_id_number":      "id_number",
}

// IdentityRepository stores customers and employees in separate collections
// and implements both ports.IdentityRepository and ports.LockoutStore.
type IdentityRepository struct {
	customers *mongo.Collection
	employees *mongo.Collection
	now       func() time.Time
}

func NewIdentityRepository(db *mongo.Database) *IdentityRepository {
	return &IdentityRepository{
		customers: db.Collection(collectionCustomers),
		employees: db.Collection(collectionEmployees),
		now:       time.Now,
	}
}

type identityDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ExternalID     string             `bson:"external_id"`
	DisplayName    string             `bson:"full_name"`
	Username       string             `bson:"username"`
	SecretHash     string             `bson:"password_hash,omitempty"`
	RoleID         primitive.ObjectID `bson:"role_id"`
	IsActive       bool               `bson:"is_active"`
	FailedAttempts int64              `bson:"failed_login_attempts"`
	LockedUntil    *time.Time         `bson:"locked_until"`
	LockoutVersion int64              `bson:"lockout_version"`
	LastLoginAt    *time.Time         `bson:"last_login,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

type customerDoc struct {
	identityDoc `bson:",inline"`

	NationalIDCipher    string `bson:"id_number"`
	NationalIDIndex     string `bson:"id_number_index"`
	AccountNumberCipher string `bson:"account_number"`
	AccountNumberIndex  string `bson:"account_number_index"`
}

type identityWithRoleDoc struct {
	identityDoc `bson:",inline"`

	Role *roleDoc `bson:"role,omitempty"`
}

type lockoutDoc struct {
	FailedAttempts int64      `bson:"failed_login_attempts"`
	LockedUntil    *time.Time `bson:"locked_until"`
	LockoutVersion int64      `bson:"lockout_version"`
}

func (d lockoutDoc) state() domain.LockoutState {
	st := domain.LockoutState{Version: d.LockoutVersion}
	if d.FailedAttempts > 0 {
		st.FailedAttempts = uint(d.FailedAttempts)
	}
	if d.LockedUntil != nil {
		until := d.LockedUntil.UTC()
		st.LockedUntil = &until
	}
	return st
}

func (d identityDoc) toDomain(kind domain.AccountKind) *domain.Identity {
	ident := &domain.Identity{
		ID:          d.ID.Hex(),
		Kind:        kind,
		ExternalID:  d.ExternalID,
		DisplayName: d.DisplayName,
		Username:    d.Username,
		SecretHash:  d.SecretHash,
		RoleID:      d.RoleID.Hex(),
		IsActive:    d.IsActive,
		Lockout: lockoutDoc{
			FailedAttempts: d.FailedAttempts,
			LockedUntil:    d.LockedUntil,
			LockoutVersion: d.LockoutVersion,
		}.state(),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.LastLoginAt != nil {
		at := d.LastLoginAt.UTC()
		ident.LastLoginAt = &at
	}
	return ident
}

func (d customerDoc) toDomain() *domain.Customer {
	return &domain.Customer{
		Identity:            *d.identityDoc.toDomain(domain.KindCustomer),
		NationalIDCipher:    d.NationalIDCipher,
		NationalIDIndex:     d.NationalIDIndex,
		AccountNumberCipher: d.AccountNumberCipher,
		AccountNumberIndex:  d.AccountNumberIndex,
	}
}

func (r *IdentityRepository) collection(kind domain.AccountKind) *mongo.Collection {
	if kind == domain.KindEmployee {
		return r.employees
	}
	return r.customers
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrIdentityNotFound
	}
	return oid, nil
}

func (r *IdentityRepository) FindCustomerByUsername(ctx context.Context, username string) (*domain.Customer, error) {
	return r.findCustomer(ctx, bson.M{"username": username})
}

func (r *IdentityRepository) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findCustomer(ctx, bson.M{"_id": oid})
}

func (r *IdentityRepository) findCustomer(ctx context.Context, filter bson.M) (*domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc customerDoc
	if err := r.customers.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, storeErr("find customer", err)
	}
	return doc.toDomain(), nil
}

// FindEmployeeByLogin matches either the username or the employee id.
func (r *IdentityRepository) FindEmployeeByLogin(ctx context.Context, login string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"username": login},
		bson.M{"external_id": login},
	}}
	var doc identityDoc
	if err := r.employees.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, storeErr("find employee", err)
	}
	return doc.toDomain(domain.KindEmployee), nil
}

// GetIdentityWithRole joins the role in the same round trip and never
// returns the password hash.
func (r *IdentityRepository) GetIdentityWithRole(ctx context.Context, ref domain.IdentityRef) (*domain.Identity, *domain.Role, error) {
	oid, err := objectID(ref.ID)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": oid}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.M{
			"from":         collectionRoles,
			"localField":   "role_id",
			"foreignField": "_id",
			"as":           "role",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$role", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"password_hash": 0}}},
	}
	cur, err := r.collection(ref.Kind).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, nil, storeErr("identity with role", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, nil, storeErr("identity with role", err)
		}
		return nil, nil, domain.ErrIdentityNotFound
	}
	var doc identityWithRoleDoc
	if err := cur.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode identity with role: %w", err)
	}

	ident := doc.identityDoc.toDomain(ref.Kind)
	if doc.Role == nil {
		return ident, nil, domain.ErrRoleNotFound
	}
	return ident, doc.Role.toDomain(), nil
}

// UsernameTaken checks both collections; usernames are unique across kinds.
func (r *IdentityRepository) UsernameTaken(ctx context.Context, kind domain.AccountKind, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	other := domain.KindEmployee
	if kind == domain.KindEmployee {
		other = domain.KindCustomer
	}
	for _, coll := range []*mongo.Collection{r.collection(kind), r.collection(other)} {
		n, err := coll.CountDocuments(ctx, bson.M{"username": username}, options.Count().SetLimit(1))
		if err != nil {
			return false, storeErr("username lookup", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *IdentityRepository) LastExternalID(ctx context.Context, kind domain.AccountKind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.M{"external_id": 1})
	var doc struct {
		ExternalID string `bson:"external_id"`
	}
	if err := r.collection(kind).FindOne(ctx, bson.M{}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", storeErr("last external id", err)
	}
	return doc.ExternalID, nil
}

func (r *IdentityRepository) CreateCustomer(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	roleID, err := primitive.ObjectIDFromHex(c.RoleID)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", domain.ErrRoleNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC()
	doc := customerDoc{
		identityDoc: identityDoc{
			ExternalID:  c.ExternalID,
			DisplayName: c.DisplayName,
			Username:    c.Username,
			SecretHash:  c.SecretHash,
			RoleID:      roleID,
			IsActive:    c.IsActive,
			CreatedAt:   orNow(c.CreatedAt, now),
			UpdatedAt:   orNow(c.UpdatedAt, now),
		},
		NationalIDCipher:    c.NationalIDCipher,
		NationalIDIndex:     c.NationalIDIndex,
		AccountNumberCipher: c.AccountNumberCipher,
		AccountNumberIndex:  c.AccountNumberIndex,
	}

	res, err := r.customers.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &domain.ConflictError{Field: duplicateField(err)}
		}
		return nil, storeErr("insert customer", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toDomain(), nil
}

// UpsertEmployee creates the employee keyed by external id, or refreshes its
// profile and secret. Lockout state and creation time are left untouched on
// an existing record.
func (r *IdentityRepository) UpsertEmployee(ctx context.Context, e *domain.Identity) (*domain.Identity, error) {
	if e.ExternalID == "" {
		return nil, fmt.Errorf("upsert employee: external id is required")
	}
	roleID, err := primitive.ObjectIDFromHex(e.RoleID)
	if err != nil {
		return nil, fmt.Errorf("upsert employee: %w", domain.ErrRoleNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"full_name":     e.DisplayName,
			"username":      e.Username,
			"password_hash": e.SecretHash,
			"role_id":       roleID,
			"is_active":     e.IsActive,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"external_id":           e.ExternalID,
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"lockout_version":       0,
			"created_at":            now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc identityDoc
	err = r.employees.FindOneAndUpdate(ctx, bson.M{"external_id": e.ExternalID}, update, opts).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &domain.ConflictError{Field: duplicateField(err)}
		}
		return nil, storeErr("upsert employee", err)
	}
	return doc.toDomain(domain.KindEmployee), nil
}

func (r *IdentityRepository) LoadLockout(ctx context.Context, ref domain.IdentityRef) (domain.LockoutState, error) {
	oid, err := objectID(ref.ID)
	if err != nil {
		return domain.LockoutState{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetProjection(bson.M{
		"failed_login_attempts": 1,
		"locked_until":          1,
		"lockout_version":       1,
	})
	var doc lockoutDoc
	if err := r.collection(ref.Kind).FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.LockoutState{}, domain.ErrIdentityNotFound
		}
		return domain.LockoutState{}, storeErr("load lockout", err)
	}
	return doc.state(), nil
}

// SwapLockout is a compare-and-swap on lockout_version.
func (r *IdentityRepository) SwapLockout(ctx context.Context, ref domain.IdentityRef, expected int64, next domain.LockoutState, lastLogin *time.Time) error {
	oid, err := objectID(ref.ID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{
		"failed_login_attempts": int64(next.FailedAttempts),
		"locked_until":          next.LockedUntil,
		"updated_at":            r.now().UTC(),
	}
	if lastLogin != nil {
		set["last_login"] = lastLogin.UTC()
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"lockout_version": 1},
	}

	coll := r.collection(ref.Kind)
	res, err := coll.UpdateOne(ctx, bson.M{"_id": oid, "lockout_version": expected}, update)
	if err != nil {
		return storeErr("swap lockout", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return storeErr("swap lockout", err)
	}
	if n == 0 {
		return domain.ErrIdentityNotFound
	}
	return domain.ErrLockoutConflict
}

// EnsureIndexes creates the unique indexes the store relies on for
// uniqueness and the sort index used for external id allocation.
func (r *IdentityRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := func(field, name string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(name),
		}
	}
	byCreated := mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}

	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{r.customers, []mongo.IndexModel{
			unique("username", "uniq_username"),
			unique("external_id", "uniq_external_id"),
			unique("account_number_index", "uniq_account_number"),
			unique("id_number_index", "uniq_id_number"),
			byCreated,
		}},
		{r.employees, []mongo.IndexModel{
			unique("username", "uniq_username"),
			unique("external_id", "uniq_external_id"),
			byCreated,
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// duplicateField names the field behind a duplicate key error using the
// index name embedded in the server message.
func duplicateField(err error) string {
	msg := err.Error()
	for index, field := range uniqueIndexField {
		if strings.Contains(msg, index) {
			return field
		}
	}
	return ""
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}
