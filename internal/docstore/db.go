package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"remindcal/internal/apperr"
)

// documentRow is the storage shape of one document.
type documentRow struct {
	Collection string `gorm:"primaryKey;size:191;index"`
	ID         string `gorm:"primaryKey;size:64"`
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type subKey struct {
	collection string
	orderBy    string
}

// DB implements Store on a gorm database.
type DB struct {
	db *gorm.DB

	mu   sync.Mutex
	subs map[*Subscription]subKey
}

// Open prepares the document table on db and returns the store.
func Open(db *gorm.DB) (*DB, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &DB{db: db, subs: make(map[*Subscription]subKey)}, nil
}

func (d *DB) Create(ctx context.Context, collection string, data Record) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", apperr.Store("create", err)
	}
	row := documentRow{Collection: collection, ID: id, Data: raw}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", apperr.Store("create", err)
	}
	d.notify(collection)
	return id, nil
}

func (d *DB) Update(ctx context.Context, collection, id string, partial Record) error {
	var row documentRow
	db := d.db.WithContext(ctx)
	err := db.Where("collection = ? AND id = ?", collection, id).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.ErrNotFound
	case err != nil:
		return apperr.Store("update", err)
	}

	data := Record{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return apperr.Store("update", err)
		}
	}
	for k, v := range partial {
		data[k] = v
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return apperr.Store("update", err)
	}
	row.Data = raw
	if err := db.Save(&row).Error; err != nil {
		return apperr.Store("update", err)
	}
	d.notify(collection)
	return nil
}

func (d *DB) Delete(ctx context.Context, collection, id string) error {
	res := d.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return apperr.Store("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	d.notify(collection)
	return nil
}

func (d *DB) List(ctx context.Context, collection, orderBy string) ([]Document, error) {
	var rows []documentRow
	if err := d.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&rows).Error; err != nil {
		return nil, apperr.Store("list", err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		data := Record{}
		if len(row.Data) > 0 {
			if err := json.Unmarshal(row.Data, &data); err != nil {
				return nil, apperr.Store("list", err)
			}
		}
		docs = append(docs, Document{ID: row.ID, Data: data})
	}

	sortDocuments(docs, orderBy)
	return docs, nil
}

func (d *DB) Subscribe(collection, orderBy string) *Subscription {
	sub := NewSubscription(d.unsubscribe)

	d.mu.Lock()
	d.subs[sub] = subKey{collection: collection, orderBy: orderBy}
	d.mu.Unlock()

	sub.Push(d.snapshot(collection, orderBy))
	return sub
}

func (d *DB) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, sub)
}

// notify pushes a fresh snapshot to every subscription of collection.
func (d *DB) notify(collection string) {
	d.mu.Lock()
	subs := make(map[*Subscription]subKey, len(d.subs))
	for sub, key := range d.subs {
		if key.collection == collection {
			subs[sub] = key
		}
	}
	d.mu.Unlock()

	for sub, key := range subs {
		sub.Push(d.snapshot(collection, key.orderBy))
	}
}

func (d *DB) snapshot(collection, orderBy string) Event {
	docs, err := d.List(context.Background(), collection, orderBy)
	if err != nil {
		return Event{Err: err}
	}
	return Event{Docs: docs}
}

// sortDocuments orders by the named field, normalizing timestamps, with id
// as the deterministic tiebreak. Unknown fields fall back to string compare.
func sortDocuments(docs []Document, orderBy string) {
	if orderBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i].Data[orderBy], docs[j].Data[orderBy]
		at, aok := NormalizeTime(a)
		bt, bok := NormalizeTime(b)
		switch {
		case aok && bok:
			if !at.Equal(bt) {
				return at.Before(bt)
			}
		case aok != bok:
			return aok
		default:
			as, bs := fmt.Sprint(a), fmt.Sprint(b)
			if as != bs {
				return as < bs
			}
		}
		return docs[i].ID < docs[j].ID
	})
}
